// Package engine implements the gallery transfer pipeline behind the
// uploader.Uploader interface: folder census in viewer order, resume-set
// filtering, oversize skips, bounded parallel batches, and bounded retry
// rounds. The per-image wire protocol stays behind the ImageHost interface.
package engine
