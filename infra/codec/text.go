package codec

import "fmt"

// FormatOrder renders the audit line for an accepted order.
func FormatOrder(m OrderMessage) string {
	return fmt.Sprintf("[ORDER] %s | Company: %s | Price: %s | Quantity: %d",
		m.Side, m.Name, m.Price, m.Qty)
}

// FormatTrade renders the audit line for an execution.
func FormatTrade(m TradeMessage) string {
	return fmt.Sprintf("[TRADE] Company: %s | Buy @%s | Sell @%s | Quantity: %d",
		m.Name, m.BuyPrice, m.Price, m.Qty)
}
