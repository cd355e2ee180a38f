// Package protocol defines the envelope wire format and the closed set of
// messages exchanged over a trading session.
package protocol

import "sort"

// Kind is the envelope discriminator carried in message_type
type Kind string

// Inbound kinds
const (
	KindSubscribeMarketData   Kind = "subscribe_market_data"
	KindUnsubscribeMarketData Kind = "unsubscribe_market_data"
	KindPlaceOrder            Kind = "place_order"
	KindCancelOrder           Kind = "cancel_order"
	KindGetOrders             Kind = "get_orders"
	KindSaveOrder             Kind = "save_order"
)

// Outbound kinds
const (
	KindSuccessInfo      Kind = "success_info"
	KindErrorInfo        Kind = "error_info"
	KindExecutionReport  Kind = "execution_report"
	KindOrdersList       Kind = "orders_list"
	KindMarketDataUpdate Kind = "market_data_update"
	KindOrderSaved       Kind = "order_saved"
)

// inboundRegistry maps each client kind to a fresh payload value
var inboundRegistry = map[Kind]func() Inbound{
	KindSubscribeMarketData:   func() Inbound { return &SubscribeMarketData{} },
	KindUnsubscribeMarketData: func() Inbound { return &UnsubscribeMarketData{} },
	KindPlaceOrder:            func() Inbound { return &PlaceOrder{} },
	KindCancelOrder:           func() Inbound { return &CancelOrder{} },
	KindGetOrders:             func() Inbound { return &GetOrders{} },
	KindSaveOrder:             func() Inbound { return &SaveOrder{} },
}

var outboundRegistry = map[Kind]func() Outbound{
	KindSuccessInfo:      func() Outbound { return &SuccessInfo{} },
	KindErrorInfo:        func() Outbound { return &ErrorInfo{} },
	KindExecutionReport:  func() Outbound { return &ExecutionReport{} },
	KindOrdersList:       func() Outbound { return &OrdersList{} },
	KindMarketDataUpdate: func() Outbound { return &MarketDataUpdate{} },
	KindOrderSaved:       func() Outbound { return &OrderSaved{} },
}

// InboundKinds lists the registered client kinds in sorted order
func InboundKinds() []Kind {
	return sortedKinds(inboundRegistry)
}

// OutboundKinds lists the registered server kinds in sorted order
func OutboundKinds() []Kind {
	return sortedKinds(outboundRegistry)
}

// IsInbound reports whether a client may send the kind
func (k Kind) IsInbound() bool {
	_, ok := inboundRegistry[k]
	return ok
}

func (k Kind) String() string {
	return string(k)
}

func sortedKinds[T any](registry map[Kind]T) []Kind {
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
