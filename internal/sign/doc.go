// Package sign manages the fleet's provisioned LED sign records.
//
// A Sign pairs a hardware device identifier with operator metadata: a
// display name, the firmware protocol dialect, and whether the sign is
// simulated. Device identifiers are 8-20 alphanumeric characters and are
// the primary key throughout the system.
//
// Persistence goes through the Repository interface. SQLiteRepository is
// the production implementation; MemoryRepository serves tests and
// ephemeral deployments.
package sign
