// Package diskspace samples free space on the data and temp paths,
// classifies it into an ordered pressure tier, and gates new uploads and
// large temp files accordingly. A fixed-size reserve file is sacrificed
// exactly once when the emergency tier is entered so cleanup operations
// always have slack to work with.
package diskspace
