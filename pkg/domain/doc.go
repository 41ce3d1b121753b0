package domain

// domain package contains the models of deposition state.
//
// `domain/entities.go` has the row types of the four tables, and `domain/results.go` has
// the accessions and visibility stamps the archive gives to them.
// `domain/status.go` defines statuses and the order they progress in.
//
// # Entities
//
// - `IntakeEntry`: a released sequence entry (accession + version) to be deposited.
// Its status aggregates progress of the children below, and only moves forward.
//
// - `ProjectEntity`: a study in the archive, shared by every entry of a (group, organism).
//
// - `SampleEntity`: a sample in the archive, one per entry.
//
// - `AssemblyEntity`: a genome assembly in the archive, one per entry.
// Assemblies are accepted first, and accessioned some time later (WAITING).
//
// Children move READY -> SUBMITTING -> (WAITING ->) SUBMITTED, or to HAS_ERRORS.
// Every move is a compare-and-update: a row is updated only when it still has the status it was read with.
