package llm

// ToolPolicy guards one request's tool loop against the pathological
// patterns long agent sessions produce: the model re-issuing an identical
// call it already has the answer to, and unbounded file-read loops.
//
// Repeat reads of one file are already answered by the duplicate check, so
// the read cap counts calls across all argument payloads: it bounds how
// much of the filesystem one request can walk, not how often one file is
// touched.
type ToolPolicy struct {
	// MaxFileReads caps how many read-style tool calls may run within
	// one request, counted across distinct argument payloads. Zero means
	// unlimited.
	MaxFileReads int

	seen      map[string]int
	lastTexts map[string]string
}

// readTools are the tool names treated as file reads for capping purposes.
var readTools = map[string]bool{
	"read_file": true,
	"read":      true,
	"cat":       true,
}

// NewToolPolicy returns a policy with the given per-file read cap.
func NewToolPolicy(maxFileReads int) *ToolPolicy {
	return &ToolPolicy{
		MaxFileReads: maxFileReads,
		seen:         make(map[string]int),
		lastTexts:    make(map[string]string),
	}
}

// Check decides whether a tool call should execute. When it returns false
// the accompanying message is delivered to the model as the tool result
// instead of running the tool.
func (p *ToolPolicy) Check(call ToolCall) (ok bool, message string) {
	if p == nil {
		return true, ""
	}
	key := call.Name + "\x00" + call.Args
	count := p.seen[key]
	p.seen[key] = count + 1

	if count > 0 {
		if prev, has := p.lastTexts[key]; has {
			return false, "duplicate tool call with identical arguments; previous result: " + prev
		}
		return false, "duplicate tool call with identical arguments"
	}

	if p.MaxFileReads > 0 && readTools[call.Name] {
		reads := 0
		prefix := call.Name + "\x00"
		for k, n := range p.seen {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				reads += n
			}
		}
		if reads > p.MaxFileReads {
			return false, "file read limit reached for this request"
		}
	}

	return true, ""
}

// Record stores a tool result so a later duplicate call can be answered
// from it.
func (p *ToolPolicy) Record(call ToolCall, result ToolResult) {
	if p == nil {
		return
	}
	p.lastTexts[call.Name+"\x00"+call.Args] = result.Content
}
