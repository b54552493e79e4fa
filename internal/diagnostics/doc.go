// Package diagnostics inspects the host this process runs on.
//
// HostCollector gathers CPU, memory, disk and load figures through gopsutil
// for the doctor command. ResourcePreflight uses the same figures to refuse
// spawning JDK tools when the host is short of memory: attaching to a JVM
// (jmap, jcmd) allocates on both sides and can push a starved host over.
package diagnostics
