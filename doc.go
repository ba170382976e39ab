// Package watermark flags visible watermarks in batches of images.
//
// Each image is pre-enhanced to bring faint overlay edges forward, handed to a
// pluggable Detector, and the returned regions are drawn as red boxes on a copy
// of the original. A Runner drives a whole directory sequentially and writes
// the per-image verdicts to a JSON report (result.json by default).
package watermark
