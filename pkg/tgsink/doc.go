// Package tgsink delivers log records to Telegram chats.
//
// Sink is an slog.Handler that buffers records per destination in bounded
// FIFO caches, collapses consecutive duplicate records into one annotated
// message, optionally merges records into fixed-width time windows, and
// retries failed deliveries from a background watcher. Delivery is
// at-least-once: a payload is only removed from its cache after the API
// accepted it (or rejected it permanently), and an entry evicted by a full
// cache is gone for good.
//
// Destinations are opaque identifiers of the form "[label:]chat_id[@thread]";
// a record carrying the tgsink.DestKey attribute is routed only to the
// destination whose label matches.
package tgsink
