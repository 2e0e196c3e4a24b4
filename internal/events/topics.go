package events

// Topic constants for domain events emitted by the checkout service.
const (
	TopicOrderSubmitted = "order.submitted"
	TopicVoucherApplied = "voucher.applied"
)
