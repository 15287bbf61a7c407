// Package engine aggregates the managed heap, the cross-ABI JIT
// backend and the declarative-to-bytecode compiler into one facade, the
// way internal/gocore/process.go aggregates a core.Process plus its
// derived DWARF/type/root state. An Engine is the "visit all roots" /
// "meta-builder sink" / "IR plus helper table" external-collaborator
// boundary spec.md §1 treats as outside the runtime core proper: a host
// plugs its own object model and helper routines into the fields below.
package engine

import (
	"fmt"
	"runtime"

	"github.com/qmlcore/runtime/internal/asm"
	"github.com/qmlcore/runtime/internal/heap"
	"github.com/qmlcore/runtime/internal/jit"
	"github.com/qmlcore/runtime/internal/objtree"
)

// Config selects the target architecture and wires in the
// host-supplied collaborators an Engine cannot construct itself.
type Config struct {
	// Arch picks the JIT backend's target. Nil means HostArchitecture().
	Arch *asm.Architecture

	// Roots and StackRoots are the host's object-model root enumerators,
	// per heap.RootsProvider/heap.StackRootProvider.
	Roots      heap.RootsProvider
	StackRoots heap.StackRootProvider

	// Types resolves the declarative compiler's type/enum/attached-type
	// references. A host registers its QML-like element set here before
	// compiling any document.
	Types objtree.TypeTable

	// Helpers supplies the runtime call targets the instruction selector
	// emits Call statements against (one helper per call kind, plus
	// exception retrieval).
	Helpers jit.HelperTable
}

// HostArchitecture returns the asm.Architecture matching the running
// process, mirroring arch/arch.go's HostArch() selection by GOARCH.
func HostArchitecture() (*asm.Architecture, error) {
	switch runtime.GOARCH {
	case "amd64":
		return asm.AMD64, nil
	case "386":
		return asm.X86, nil
	case "arm":
		return asm.ARM, nil
	default:
		return nil, fmt.Errorf("engine: unsupported GOARCH %q", runtime.GOARCH)
	}
}

// Engine is one runtime instance: a managed heap, a JIT backend bound
// to one target architecture, and a declarative compiler sharing the
// host's type table.
type Engine struct {
	Arch *asm.Architecture

	Pages  *heap.PageBackend
	Chunks *heap.ChunkAllocator
	Block  *heap.BlockAllocator
	Huge   *heap.HugeItemAllocator
	GC     *heap.CollectorCore

	Types   objtree.TypeTable
	helpers jit.HelperTable
}

// New assembles the heap, picks the JIT target architecture and wires
// the declarative compiler's type table, per the "Engine wiring"
// aggregation described above.
func New(cfg Config) (*Engine, error) {
	arch := cfg.Arch
	if arch == nil {
		var err error
		arch, err = HostArchitecture()
		if err != nil {
			return nil, err
		}
	}
	if cfg.Types == nil {
		return nil, fmt.Errorf("engine: Config.Types must resolve the host's element set")
	}

	pages := heap.NewPageBackend()
	chunks := heap.NewChunkAllocator(pages)
	block := heap.NewBlockAllocator(chunks)
	huge := heap.NewHugeItemAllocator(chunks)
	gc := heap.NewCollectorCore(block, huge)
	gc.Roots = cfg.Roots
	gc.StackRoots = cfg.StackRoots
	gc.PolicyFromEnv()

	return &Engine{
		Arch:    arch,
		Pages:   pages,
		Chunks:  chunks,
		Block:   block,
		Huge:    huge,
		GC:      gc,
		Types:   cfg.Types,
		helpers: cfg.Helpers,
	}, nil
}

// Compile runs the ObjectTreeCompiler for one document, identified by
// url for diagnostics, over the already-parsed root node.
func (e *Engine) Compile(url string, root *objtree.Node) (*objtree.CompiledUnit, []*objtree.CompileError) {
	c := objtree.NewObjectTreeCompiler(url, e.Types)
	return c.Compile(root)
}

// Assemble lowers fn to native code for the Engine's target
// architecture and returns the finished MacroAssembler, per spec.md
// §4.8's InstructionSelector pass.
func (e *Engine) Assemble(fn *jit.Function) (*asm.MacroAssembler, error) {
	m := asm.NewMacroAssembler(e.Arch)
	sel := jit.NewInstructionSelector(m, &e.helpers, fn)
	if err := sel.Select(); err != nil {
		return nil, fmt.Errorf("engine: select %v: %w", fn, err)
	}
	return m, nil
}

// Stats reports the collector's last-cycle statistics, for the
// QMLCORE_GC_STATS supplemented feature.
func (e *Engine) Stats() heap.Stats { return e.GC.Stats() }
