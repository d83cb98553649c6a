package modding

// Descriptor names one mod and partitions its script files into the two
// load phases. Descriptors are produced by mod discovery and consumed once
// by the dispatcher; the dispatcher never resolves file paths itself.
type Descriptor struct {
	// ID is the mod's unique identity. Every definition and prototype the
	// mod contributes is namespaced under it.
	ID string

	// DataScripts are executed, in order, during the data-definition phase.
	DataScripts []string

	// ControlScripts are executed, in order, during the control phase.
	ControlScripts []string
}
