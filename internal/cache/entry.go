package cache

// CompileRecord is the last successful compile invocation of one source
type CompileRecord struct {
	// Hash is the path hash of the source, formatted by Key
	Hash string `json:"hash"`

	Compiler string   `json:"compiler"`
	Args     []string `json:"args"`

	Source  string `json:"source"`
	Output  string `json:"output"`
	DepFile string `json:"depfile"`
}

// Fingerprint identifies the toolchain that produced the records.
// Each field holds the first line of the tool's --version output.
type Fingerprint struct {
	CC  string `json:"cc"`
	CXX string `json:"cxx"`
	AS  string `json:"as"`
}
