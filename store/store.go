// Package store provides InstanceStore implementations: a DynamoDB-backed
// store for production and an in-memory store for tests and local runs.
package store
