package watermark

import "fmt"

// ErrorKind classifies what went wrong with a single image.
type ErrorKind int

// Failure classes reported by a Runner.
const (
	KindPath ErrorKind = iota
	KindDecode
	KindDetect
	KindAnnotate
	KindWrite
	KindReport
)

func (k ErrorKind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindDecode:
		return "decode"
	case KindDetect:
		return "detect"
	case KindAnnotate:
		return "annotate"
	case KindWrite:
		return "write"
	case KindReport:
		return "report"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ImageError is the failure of one pipeline step for one image.
type ImageError struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (e *ImageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}
