package types

// Version is the canonical project version.
// The storage record contract and the CLI share this version
// per the lockstep versioning policy.
const Version = "0.1.0"

// ContractVersion is the version stamped on every persisted record.
const ContractVersion = Version
