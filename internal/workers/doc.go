/*
Package workers sizes concurrency limits in containerized environments.

When running in a container the number of usable CPUs may be limited by
cgroup constraints. Go 1.19+ sets GOMAXPROCS from the container CPU limit,
while runtime.NumCPU() still reports the host's CPU count, so sizing uses
GOMAXPROCS:

	// One engine job per available CPU, at most 8.
	n := workers.ForCPU(8)

ParseLimit turns an operator setting such as MAX_CONCURRENT_JOBS into a
limit, where "auto" resolves to ForCPU(0) and 0 means unlimited.

Media encoding is CPU-bound: running more encoders than CPUs only adds
context switching, so ForCPU is the right default for engine work.
*/
package workers
