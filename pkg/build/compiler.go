package build

import (
	"context"

	"github.com/matzehuels/arduci/pkg/host"
)

// Compiler invokes a compiler binary with an argument vector, verbatim.
type Compiler interface {
	Invoke(ctx context.Context, binary string, args []string) host.Result
}

// HostCompiler runs compilers installed on the host.
type HostCompiler struct {
	Exec host.Executor // defaults to host.Exec
	Dir  string        // working directory of every invocation
}

// Invoke runs binary with args in c.Dir.
func (c HostCompiler) Invoke(ctx context.Context, binary string, args []string) host.Result {
	ex := c.Exec
	if ex == nil {
		ex = host.Exec{}
	}
	return ex.Run(ctx, binary, args, host.Options{Dir: c.Dir})
}
