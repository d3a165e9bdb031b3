package rabbitmq

// Exchange единый обменник сервиса квот и выделений.
const Exchange = "entitlements"

// Маршрутные ключи событий.
const (
	RoutingKeyPurchaseCompleted  = "purchase_completed"
	RoutingKeyFeatureExpired     = "feature_expired"
	RoutingKeyEntitlementExpired = "entitlement_expired"
	RoutingKeyExhausted          = "exhausted"
)

// Имена очередей.
const (
	QueuePurchases          = "entitlements.purchases"
	QueueFeatureExpired     = "entitlements.feature_expired"
	QueueEntitlementExpired = "entitlements.entitlement_expired"
	QueueExhausted          = "entitlements.exhausted"
)

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetEntitlementQueues возвращает очереди, привязанные к обменнику
// entitlements: входящие события покупок и исходящие события истечения.
func GetEntitlementQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueuePurchases, RoutingKey: RoutingKeyPurchaseCompleted},
		{QueueName: QueueFeatureExpired, RoutingKey: RoutingKeyFeatureExpired},
		{QueueName: QueueEntitlementExpired, RoutingKey: RoutingKeyEntitlementExpired},
		{QueueName: QueueExhausted, RoutingKey: RoutingKeyExhausted},
	}
}
