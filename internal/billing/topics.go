package billing

const (
	// Payment lifecycle facts for the order aggregator.
	TopicPaymentEvents = "payment.events"
	// Succeeded-only facts for the notification pipeline.
	TopicPaymentConfirmation = "payment-confirmation"
	// Message-to-self queue driving mock-mode settlement.
	TopicSettlement = "billing.settlement"
)

// Partition key = booking_id, so all payment events for one booking keep
// their order.
func PartitionKey(bookingID string) []byte { return []byte(bookingID) }
