package api

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/ws", s.handleWebSocket)
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/instruments", s.handleListInstruments)
		v1.GET("/quotes/:instrument", s.handleGetQuotes)
	}
}
