package deposition

// Organism is how sequences of an organism are described to the archive.
type Organism struct {
	ScientificName string
	TaxonID        int64
	MoleculeType   string
	Topology       string

	// segment names in ascending order. ["main"] for unsegmented organisms.
	Segments []string
}

// Segmented reports that the organism has named segments.
func (o Organism) Segmented() bool {
	return !(len(o.Segments) == 1 && o.Segments[0] == "main")
}
