package payments

const (
	TopicTransactionResolved = "payment.transaction.resolved"
	TopicInconsistency       = "payment.inconsistency"
)

// Partition key = reference, so every event of one purchase keeps its order.
func PartitionKey(reference string) []byte { return []byte(reference) }
