// Package capture produces the opaque image blobs the pipeline delivers.
//
// A Capturer pairs a Grabber (where pixels come from) with an encoder
// configured by format and quality. Screen grabs use kbinani/screenshot;
// tests and headless hosts supply their own Grabber.
//
// Failures are tagged with ErrCapture or ErrEncode so the driver can log the
// cycle as skipped without inspecting the cause.
package capture
