package callrec

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-stack/stack"
)

const modulePrefix = "github.com/callrec/callrec"

// formatStack renders the current call stack as one "function file:line"
// entry per line, innermost frame first. Runtime frames and frames inside the
// recording machinery itself are removed, so the first line is the traced
// code closest to the failure.
func formatStack() string {
	var sb strings.Builder
	for _, c := range stack.Trace().TrimRuntime() {
		fr := c.Frame()
		if strings.HasPrefix(fr.Function, modulePrefix) {
			continue
		}
		fmt.Fprintf(&sb, "%s %s:%d\n", funcNameOnly(fr.Function), pkgFilePath(&fr), fr.Line)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func pkgFilePath(frame *runtime.Frame) string {
	pre := pkgPrefix(frame.Function)
	post := pathSuffix(frame.File)
	if pre == "" {
		return post
	}
	return pre + "/" + post
}

func pkgPrefix(funcName string) string {
	const pathSep = "/"
	end := strings.LastIndex(funcName, pathSep)
	if end == -1 {
		return ""
	}
	return funcName[:end]
}

func pathSuffix(path string) string {
	const pathSep = "/"
	lastSep := strings.LastIndex(path, pathSep)
	if lastSep == -1 {
		return path
	}
	return path[strings.LastIndex(path[:lastSep], pathSep)+1:]
}

func funcNameOnly(name string) string {
	const pathSep = "/"
	if i := strings.LastIndex(name, pathSep); i != -1 {
		name = name[i+len(pathSep):]
	}
	const pkgSep = "."
	if i := strings.Index(name, pkgSep); i != -1 {
		name = name[i+len(pkgSep):]
	}
	return name
}
