// Package executor runs GraphQL operations against a Runtime, one depth of
// the response tree at a time.
//
// # Depths and batches
//
// A schema field is either synchronous (schema.Field.Async false) or batch
// resolved. Executing a selection set resolves its synchronous fields right
// away through Runtime.ResolveSync and keeps descending into their object
// values without starting a new depth. Batch-resolved fields met on the way
// are queued. When nothing synchronous is left, the queue goes to
// Runtime.BatchResolveAsync in a single call, and the children of the
// returned values form the next depth. An operation whose deepest chain of
// batch-resolved fields has length d therefore calls BatchResolveAsync d
// times, however wide the tree is.
//
// Mutations execute their root fields one after another.
//
// # Completion and errors
//
// Values are completed against their field type. Lists complete item by
// item with the index in the path. Scalars and enums go through
// Runtime.SerializeLeafValue, and interfaces and unions are narrowed with
// Runtime.ResolveType, which must name one of the possible types.
//
// Resolver errors become GraphQLErrors carrying the response path and the
// locations of the field nodes; the original error stays reachable through
// errors.Is and errors.As. A null, or an error, in a Non-Null position nulls
// the nearest nullable ancestor, and queued work below that ancestor is
// dropped before the next batch.
//
// # Incremental delivery
//
// Unless WithIncrementalDelivery(false) is given, @defer fragments and the
// tail of @stream lists are queued while the initial payload is built. The
// result is then a stream: the initial payload with hasNext true, then one
// payload per queued record. Each record runs in its own execution state
// rooted at the record's path, so batching applies inside a payload as well.
// A streamed list goes back to the end of the queue after every item, and
// records under a path nulled in their parent are skipped. Closing the
// stream closes list iterators that are still pending.
//
// # Subscriptions
//
// Subscribe asks a SubscriptionRuntime for the event stream of the single
// root field and executes the selection set once per event, with the event
// as that field's value. Failures before the stream exists produce a single
// result.
package executor
