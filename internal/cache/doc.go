// Package cache implements a persistent, content-addressed cache for
// synthesized speech audio, keyed by utterance text. Metadata is kept in a
// single durable snapshot; audio buffers are stored as individual files
// named after their phoneme content hash and voice identity. Total audio
// size is bounded by a high/low watermark pair with oldest-first eviction.
package cache
