package ena

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Segment is one sequenced segment of an assembly.
type Segment struct {
	// segment name. "main" for unsegmented genomes.
	Name string

	Sequence string
}

// Assembly is everything to build an assembly submission.
type Assembly struct {
	// name of the assembly, unique per submitter.
	Name string

	Study  string // project accession, PRJEB...
	Sample string // sample accession, ERS...

	ScientificName string
	MoleculeType   string
	Topology       string // "linear" or "circular"

	Description string
	Coverage    string
	Program     string
	Platform    string

	Segments []Segment
}

// Unsegmented reports that this assembly has only "main" segment.
func (a Assembly) Unsegmented() bool {
	return len(a.Segments) == 1 && a.Segments[0].Name == "main"
}

// ObjectName returns the name of the sequence object of the segment.
func (a Assembly) ObjectName(segment string) string {
	if a.Unsegmented() {
		return a.Name
	}
	return a.Name + "_" + segment
}

// SegmentOrder returns names of segments in chromosome list order, that is, ascending order.
func (a Assembly) SegmentOrder() []string {
	names := make([]string, 0, len(a.Segments))
	for _, s := range a.Segments {
		names = append(names, s.Name)
	}
	slices.Sort(names)
	return names
}

func (a Assembly) sorted() []Segment {
	segs := slices.Clone(a.Segments)
	slices.SortFunc(segs, func(x, y Segment) int { return strings.Compare(x.Name, y.Name) })
	return segs
}

// ChromosomeList renders the chromosome list: one line per segment.
func (a Assembly) ChromosomeList() []byte {
	typ := "segmented"
	if a.Unsegmented() {
		typ = "chromosome"
	}
	topology := a.Topology
	if topology == "" {
		topology = "linear"
	}

	buf := new(bytes.Buffer)
	for _, s := range a.sorted() {
		fmt.Fprintf(buf, "%s\t%s\t%s-%s\n", a.ObjectName(s.Name), s.Name, topology, typ)
	}
	return buf.Bytes()
}

// FlatFile renders segments in EMBL flat file format.
func (a Assembly) FlatFile() []byte {
	buf := new(bytes.Buffer)
	for _, s := range a.sorted() {
		seq := strings.ToLower(s.Sequence)
		name := a.ObjectName(s.Name)
		fmt.Fprintf(buf, "ID   XXX; XXX; %s; %s; XXX; XXX; %d BP.\n", a.Topology, a.MoleculeType, len(seq))
		fmt.Fprintf(buf, "XX\nAC   ;\nXX\nAC * _%s\nXX\n", name)
		fmt.Fprintf(buf, "DE   %s %s\nXX\n", a.ScientificName, s.Name)
		fmt.Fprintf(buf, "OS   %s\nXX\n", a.ScientificName)
		fmt.Fprintf(buf, "FH   Key             Location/Qualifiers\nFH\n")
		fmt.Fprintf(buf, "FT   source          1..%d\n", len(seq))
		fmt.Fprintf(buf, "FT                   /organism=\"%s\"\n", a.ScientificName)
		fmt.Fprintf(buf, "FT                   /mol_type=\"%s\"\nXX\n", a.MoleculeType)
		fmt.Fprintf(buf, "SQ   Sequence %d BP;\n", len(seq))
		for i := 0; i < len(seq); i += 60 {
			line := seq[i:min(i+60, len(seq))]
			buf.WriteString("    ")
			for j := 0; j < len(line); j += 10 {
				buf.WriteString(" ")
				buf.WriteString(line[j:min(j+10, len(line))])
			}
			fmt.Fprintf(buf, "%*d\n", 80-4-len(line)-(len(line)+9)/10, min(i+60, len(seq)))
		}
		buf.WriteString("//\n")
	}
	return buf.Bytes()
}

const (
	ChromosomeListFile = "chromosome_list.txt.gz"
	FlatFileFile       = "flatfile.embl.gz"
)

// Manifest renders the assembly manifest, referring ChromosomeListFile and FlatFileFile.
func (a Assembly) Manifest() []byte {
	buf := new(bytes.Buffer)
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(buf, "%s\t%s\n", k, v)
		}
	}
	line("STUDY", a.Study)
	line("SAMPLE", a.Sample)
	line("ASSEMBLYNAME", a.Name)
	line("ASSEMBLY_TYPE", "isolate")
	line("COVERAGE", a.Coverage)
	line("PROGRAM", a.Program)
	line("PLATFORM", a.Platform)
	line("MOLECULETYPE", a.MoleculeType)
	line("DESCRIPTION", a.Description)
	line("CHROMOSOME_LIST", ChromosomeListFile)
	line("FLATFILE", FlatFileFile)
	return buf.Bytes()
}

// Gzip compresses b.
func Gzip(b []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := gzip.NewWriter(buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
