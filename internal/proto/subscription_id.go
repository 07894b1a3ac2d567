package proto

// SubscriptionID identifies a subscription on the current connection.
//
// The value 1 is reserved for the request-reply multiplexed subscription;
// user subscriptions start at 2 and increment. Ids never wrap within a
// client's lifetime.
type SubscriptionID uint64

// MinSubscriptionID is the lowest valid subscription id, reserved for the
// multiplexed request-reply subscription.
const MinSubscriptionID SubscriptionID = 1

// MaxSubscriptionID is the largest representable subscription id.
const MaxSubscriptionID SubscriptionID = ^SubscriptionID(0)
