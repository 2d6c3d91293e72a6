// compileinfoprint is imported by commands for the side effect of printing
// build information to os.Stderr at startup.
package compileinfoprint

import "github.com/carbocation/tissuedge/compileinfo"

func init() {
	compileinfo.PrintToStdErr()
}
