package broker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"brokerCtl/internal/model"
)

// runningJob is one attempt in the running registry. Fields other than chain
// and attempt are guarded by Broker.mu.
type runningJob struct {
	chain   *chain
	attempt int

	cmd      *exec.Cmd
	started  time.Time
	timer    *time.Timer
	canceled bool
	timedOut bool
	exited   bool
}

// start spawns the attempt. It emits Started before the spawn is issued and
// an InternalError, with no terminal event, when the spawn fails.
func (b *Broker) start(job *runningJob) {
	desc := job.chain.desc
	workDir := desc.WorkDir
	if workDir == "" {
		workDir = b.cfg.DefaultWorkDir
	}

	b.emit(job.chain, model.Started{ID: desc.ID, Command: desc.Command, WorkDir: workDir})

	cmd := exec.Command(desc.Command[0], desc.Command[1:]...)
	cmd.Dir = workDir
	cmd.Env = mergeEnv(os.Environ(), b.cfg.DefaultEnv, desc.Env)
	configureProcess(cmd)

	stdout, stderr, err := spawn(cmd)
	if err != nil {
		b.emit(job.chain, model.InternalError{ID: desc.ID, Message: fmt.Sprintf("spawn %s: %v", desc.Command[0], err)})
		b.release(job, false, 0)
		return
	}

	timeout := b.timeoutFor(desc)

	b.mu.Lock()
	job.cmd = cmd
	job.started = time.Now()
	if timeout > 0 {
		job.timer = time.AfterFunc(timeout, func() { b.expire(job) })
	}
	if job.canceled {
		b.terminateLocked(job)
	}
	b.mu.Unlock()

	go b.supervise(job, stdout, stderr)
}

func spawn(cmd *exec.Cmd) (io.ReadCloser, io.ReadCloser, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}

func (b *Broker) timeoutFor(desc model.TaskDescriptor) time.Duration {
	if desc.Timeout != 0 {
		return desc.Timeout
	}
	return b.cfg.DefaultTimeout
}

// expire runs on the job's timer goroutine.
func (b *Broker) expire(job *runningJob) {
	b.mu.Lock()
	if job.exited || b.running[job.chain.desc.ID] != job {
		b.mu.Unlock()
		return
	}
	job.timedOut = true
	b.terminateLocked(job)
	b.mu.Unlock()
}

// terminateLocked signals job's process group unless the process has not
// been spawned yet or has already been reaped. Holding b.mu keeps the
// signal ordered against reap marking the job exited.
func (b *Broker) terminateLocked(job *runningJob) {
	if job.cmd == nil || job.exited {
		return
	}
	requestTermination(job.cmd)
}

// supervise drains both pipes, reaps the process and classifies the attempt.
func (b *Broker) supervise(job *runningJob, stdout, stderr io.Reader) {
	id := job.chain.desc.ID

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = readLines(stdout, func(line string) {
			b.emit(job.chain, model.Stdout{ID: id, Line: line})
		})
	}()
	go func() {
		defer wg.Done()
		_ = readLines(stderr, func(line string) {
			b.emit(job.chain, model.Stderr{ID: id, Line: line})
		})
	}()
	wg.Wait()

	b.finish(job, b.reap(job))
}

// reap waits for the process and marks the job exited before anything else
// can observe it, so a late timer or Cancel neither signals a reaped pid nor
// relabels a normal exit.
func (b *Broker) reap(job *runningJob) int {
	err := job.cmd.Wait()
	b.mu.Lock()
	job.exited = true
	b.mu.Unlock()
	return exitCodeOf(err)
}

// finish classifies a terminated attempt with precedence timeout, then
// canceled, then exit code.
func (b *Broker) finish(job *runningJob, exitCode int) {
	id := job.chain.desc.ID

	b.mu.Lock()
	job.exited = true
	if job.timer != nil {
		job.timer.Stop()
	}
	duration := time.Since(job.started)
	timedOut, canceled := job.timedOut, job.canceled
	b.mu.Unlock()

	var terminal model.TaskEvent
	switch {
	case timedOut:
		terminal = model.Timeout{ID: id, Duration: duration}
	case canceled:
		terminal = model.Canceled{ID: id, Duration: duration}
	case exitCode == 0:
		terminal = model.Finished{ID: id, ExitCode: exitCode, Duration: duration}
	default:
		terminal = model.Failed{ID: id, ExitCode: exitCode, Duration: duration}
	}

	retry, delay := false, time.Duration(0)
	if timedOut || (!canceled && exitCode != 0) {
		retry, delay = b.policy.Decide(job.attempt)
	}
	if !retry {
		b.emit(job.chain, terminal)
		b.release(job, false, 0)
		return
	}

	b.emit(job.chain, model.Retrying{ID: id, Attempt: job.attempt + 1, Delay: delay})
	if !b.release(job, true, delay) {
		// Shutting down: the chain still ends with its terminal outcome.
		b.emit(job.chain, terminal)
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// mergeEnv overlays each layer onto base, later layers winning on key
// conflicts. Keys from base keep their order; new keys are appended sorted.
func mergeEnv(base []string, layers ...map[string]string) []string {
	index := make(map[string]int, len(base))
	out := make([]string, 0, len(base))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if i, ok := index[key]; ok {
			out[i] = kv
			continue
		}
		index[key] = len(out)
		out = append(out, kv)
	}
	for _, layer := range layers {
		keys := make([]string, 0, len(layer))
		for k := range layer {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			kv := k + "=" + layer[k]
			if i, ok := index[k]; ok {
				out[i] = kv
				continue
			}
			index[k] = len(out)
			out = append(out, kv)
		}
	}
	return out
}
