// Package key builds the colon-separated keys used across the ledger:
// "crate:version" for entities, "crate:version:process:process-version"
// for tasks, and the same with a trailing ":result-kind" for results.
package key

import "bytes"

// Sep is the single reserved separator byte. It must never appear in a
// crate name or version string, which crates.io guarantees.
const Sep = ':'

// AppendEntity writes "crate:version" into scratch and returns the
// assembled key. scratch is reset and reused by the caller across
// calls; the returned string is an independent copy (bytes.Buffer.String
// copies its backing array), so it stays valid after scratch is reused.
func AppendEntity(scratch *bytes.Buffer, crate, version string) string {
	scratch.Reset()
	scratch.WriteString(crate)
	scratch.WriteByte(Sep)
	scratch.WriteString(version)
	return scratch.String()
}

// AppendTask writes "crate:version:process:process-version".
func AppendTask(scratch *bytes.Buffer, crate, version, process, processVersion string) string {
	scratch.Reset()
	scratch.WriteString(crate)
	scratch.WriteByte(Sep)
	scratch.WriteString(version)
	scratch.WriteByte(Sep)
	scratch.WriteString(process)
	scratch.WriteByte(Sep)
	scratch.WriteString(processVersion)
	return scratch.String()
}

// AppendResult writes
// "crate:version:process:process-version:result-kind".
func AppendResult(scratch *bytes.Buffer, crate, version, process, processVersion, resultKind string) string {
	scratch.Reset()
	scratch.WriteString(crate)
	scratch.WriteByte(Sep)
	scratch.WriteString(version)
	scratch.WriteByte(Sep)
	scratch.WriteString(process)
	scratch.WriteByte(Sep)
	scratch.WriteString(processVersion)
	scratch.WriteByte(Sep)
	scratch.WriteString(resultKind)
	return scratch.String()
}
