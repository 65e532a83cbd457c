package bus

// Routing keys recognized on the "message" exchange.
const (
	RouteDatabaseSave    = "database.save"
	RouteDatabaseRead    = "database.read"
	RouteRequestedProfit = "requested.profit"
	RouteRequestedTrends = "requested.trends"
	RouteOrdersMake      = "orders.make"
)

// Queues bound to the exchange, one consumer each.
const (
	QueueDatabaseSave    = "database_save"
	QueueDatabaseRead    = "database_read"
	QueueRequestedProfit = "requested_profit"
	QueueRequestedTrends = "requested_trends"
	QueueOrdersMake      = "orders_make"
)

// bindings is the static topic exchange: routing key to bound queues.
var bindings = map[string][]string{
	RouteDatabaseSave:    {QueueDatabaseSave},
	RouteDatabaseRead:    {QueueDatabaseRead},
	RouteRequestedProfit: {QueueRequestedProfit},
	RouteRequestedTrends: {QueueRequestedTrends},
	RouteOrdersMake:      {QueueOrdersMake},
}

// QueuesFor returns the queues bound to a routing key.
func QueuesFor(routingKey string) []string {
	return bindings[routingKey]
}

// StreamName returns the Redis stream backing a queue. All queues live
// under the "message" exchange prefix.
func StreamName(queue string) string {
	return "message:" + queue
}
