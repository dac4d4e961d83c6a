// Package runbox provides lazy acquisition, caching, and uniform invocation
// of per-language code-execution engines for interactive documentation.
//
// # Overview
//
// runbox acquires each language's execution engine on first use and memoizes
// it for the process lifetime. Three engine families are supported: an
// embedded WebAssembly Python interpreter fetched from CDN mirrors, hosted
// compiler services reached over HTTP, and the in-process Tengo scripting
// engine. All of them answer the same contract: give me source text, get back
// output or an error.
//
// # Basic Usage
//
//	reg := runtime.New()
//	reg.Register("tengo", tengo.NewFactory())
//	reg.Register("python", python.NewFactory(
//	    python.WithMirrors(mirrors),
//	))
//
//	eng, err := reg.Acquire(ctx, "python")
//	if err != nil {
//	    return err
//	}
//	result := eng.Execute(ctx, `print("hello")`)
//	fmt.Println(result.Output)
//
// Acquisition is linearized per language: concurrent Acquire calls share one
// in-flight construction and resolve to the same engine. A failed acquisition
// is cleared so a later call can retry.
//
// See the [runtime], [engine], [cdn], [editor], [orchestrator], and the
// language packages for detailed API documentation.
package runbox
