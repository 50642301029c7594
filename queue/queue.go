package queue

import (
	"sync"

	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/channel"
	"github.com/c12stack/c12/session"
)

// ProgressFunc receives commit progress updates: completed and total are in
// command-weight units. Called from the committing goroutine.
type ProgressFunc func(completed, total float64)

// Queue records deferred protocol operations and replays them, in order,
// through the synchronous session/app services — either on the calling
// goroutine or on a background worker. Q* methods never do I/O.
type Queue struct {
	Session  *session.Session
	Progress ProgressFunc

	mu            sync.Mutex
	commands      []*Command
	commitDone    bool
	workerRunning bool
	workerDone    chan struct{}
	workerErr     error
}

// New returns an empty Queue bound to s.
func New(s *session.Session) *Queue {
	return &Queue{Session: s}
}

// doCheckChannel is the foreground/background misuse detector: foreground
// operations fail with InvalidOperationInForeground while the background
// worker runs.
func (q *Queue) doCheckChannel(allowBackground bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.workerRunning && !allowBackground {
		return c12err.Newf(c12err.KindSoftware, "queue: InvalidOperationInForeground, background commit in progress")
	}
	return nil
}

// enqueue appends cmd, snapshotting the meter endianness in force at
// enqueue time, and clears the done flag of any previous finished commit.
func (q *Queue) enqueue(cmd Command) error {
	if err := q.doCheckChannel(false); err != nil {
		return err
	}
	cmd.LittleEndian = q.Session.App.Config.MeterIsLittleEndian
	q.mu.Lock()
	if q.commitDone {
		q.commands = nil
		q.commitDone = false
	}
	q.commands = append(q.commands, &cmd)
	q.mu.Unlock()
	return nil
}

// QWriteToMonitor queues a monitor message emission.
func (q *Queue) QWriteToMonitor(message string) error {
	return q.enqueue(Command{Kind: KindWriteToMonitor, Message: message})
}

// QConnect queues a channel Connect.
func (q *Queue) QConnect() error {
	return q.enqueue(Command{Kind: KindConnect})
}

// QDisconnect queues a channel Disconnect.
func (q *Queue) QDisconnect() error {
	return q.enqueue(Command{Kind: KindDisconnect})
}

// QStartSession queues a StartSession.
func (q *Queue) QStartSession() error {
	return q.enqueue(Command{Kind: KindStartSession})
}

// QEndSession queues an EndSession.
func (q *Queue) QEndSession() error {
	return q.enqueue(Command{Kind: KindEndSession})
}

// QEndSessionNoThrow queues an error-swallowing EndSession.
func (q *Queue) QEndSessionNoThrow() error {
	return q.enqueue(Command{Kind: KindEndSessionNoThrow})
}

// QIdentifyMeter queues a bare Identify.
func (q *Queue) QIdentifyMeter() error {
	return q.enqueue(Command{Kind: KindIdentifyMeter})
}

// QTableRead queues a full table read; the data is retrieved after commit
// with QGetTableData(number, dataID).
func (q *Queue) QTableRead(number uint16, dataID int) error {
	return q.enqueue(Command{Kind: KindRead, Number: number, DataID: dataID})
}

// QTableWrite queues a full table write of data.
func (q *Queue) QTableWrite(number uint16, data []byte) error {
	return q.enqueue(Command{Kind: KindWrite, Number: number, Request: append([]byte(nil), data...)})
}

// QTableReadPartial queues a partial table read.
func (q *Queue) QTableReadPartial(number uint16, offset uint32, length uint16, dataID int) error {
	return q.enqueue(Command{Kind: KindReadPartial, Number: number, Offset: offset, Length: length, DataID: dataID})
}

// QTableWritePartial queues a partial table write of data at offset.
func (q *Queue) QTableWritePartial(number uint16, offset uint32, data []byte) error {
	return q.enqueue(Command{Kind: KindWritePartial, Number: number, Offset: offset, Request: append([]byte(nil), data...)})
}

// QFunctionExecute queues a parameterless procedure with no response data.
func (q *Queue) QFunctionExecute(number uint16) error {
	return q.enqueue(Command{Kind: KindExecute, Number: number})
}

// QFunctionExecuteRequest queues a procedure with request parameters and no
// response data.
func (q *Queue) QFunctionExecuteRequest(number uint16, request []byte) error {
	return q.enqueue(Command{Kind: KindExecuteRequest, Number: number, Request: append([]byte(nil), request...)})
}

// QFunctionExecuteResponse queues a parameterless procedure whose response
// is retrieved after commit with QGetFunctionData(number, dataID).
func (q *Queue) QFunctionExecuteResponse(number uint16, dataID int) error {
	return q.enqueue(Command{Kind: KindExecuteResponse, Number: number, DataID: dataID})
}

// QFunctionExecuteRequestResponse queues a procedure with both request
// parameters and retrievable response data.
func (q *Queue) QFunctionExecuteRequestResponse(number uint16, request []byte, dataID int) error {
	return q.enqueue(Command{Kind: KindExecuteRequestResponse, Number: number, Request: append([]byte(nil), request...), DataID: dataID})
}

// QCommit executes the queued commands. Synchronously it runs them on the
// calling goroutine with a scope guard that QAborts on exit; asynchronously
// it starts the background worker and returns immediately, after which the
// caller polls QIsDone and MUST finalise with a second QCommit(false),
// which waits for the worker and surfaces the first error.
// Calling QCommit again after a finished commit clears the queue and
// returns nil (idempotent second call).
func (q *Queue) QCommit(asynchronously bool) error {
	q.mu.Lock()
	if q.workerDone != nil {
		// A background commit was started and not yet finalised: wait for
		// it and surface its first error, regardless of whether the worker
		// already stopped by the time we got here.
		done := q.workerDone
		q.mu.Unlock()
		if asynchronously {
			return c12err.Newf(c12err.KindSoftware, "queue: commit already in progress")
		}
		<-done
		q.mu.Lock()
		err := q.workerErr
		q.workerDone = nil
		q.commitDone = true
		q.mu.Unlock()
		return err
	}
	if q.commitDone {
		q.commands = nil
		q.commitDone = false
		q.mu.Unlock()
		return nil
	}
	if asynchronously {
		q.workerRunning = true
		q.workerDone = make(chan struct{})
		q.mu.Unlock()
		go q.worker()
		return nil
	}
	q.mu.Unlock()
	return q.commitSync()
}

func (q *Queue) commitSync() error {
	// The guard unwinds pending I/O on every exit path, including a panic
	// inside a service call.
	defer q.QAbort()
	return q.doQCommit()
}

func (q *Queue) worker() {
	err := q.doQCommit()
	q.mu.Lock()
	q.workerErr = err
	q.workerRunning = false
	done := q.workerDone
	q.mu.Unlock()
	close(done)
}

// doQCommit walks the queue in order, mapping each variant to the
// synchronous service. Errors short-circuit the remaining commands.
func (q *Queue) doQCommit() error {
	q.mu.Lock()
	commands := q.commands
	q.mu.Unlock()

	var total, completed float64
	for _, cmd := range commands {
		total += cmd.weight()
	}
	q.reportProgress(0, total)

	for _, cmd := range commands {
		if err := q.dispatch(cmd); err != nil {
			return err
		}
		completed += cmd.weight()
		q.reportProgress(completed, total)
	}
	return nil
}

func (q *Queue) reportProgress(completed, total float64) {
	if q.Progress != nil {
		q.Progress(completed, total)
	}
}

func (q *Queue) dispatch(cmd *Command) error {
	s := q.Session
	switch cmd.Kind {
	case KindWriteToMonitor:
		s.Channel.MonitorEvent(channel.EventApplicationLayerInformation, cmd.Message)
		return nil
	case KindConnect:
		return s.Connect()
	case KindDisconnect:
		return s.Disconnect()
	case KindStartSession:
		return s.StartSession()
	case KindEndSession:
		return s.EndSession()
	case KindEndSessionNoThrow:
		s.EndSessionNoThrow()
		return nil
	case KindIdentifyMeter:
		return s.App.Identify()
	case KindRead:
		data, err := s.App.ReadFull(cmd.Number)
		cmd.Response = data
		return err
	case KindWrite:
		return s.App.WriteFull(cmd.Number, cmd.Request)
	case KindReadPartial:
		data, err := s.App.ReadPartial(cmd.Number, cmd.Offset, cmd.Length)
		cmd.Response = data
		return err
	case KindWritePartial:
		return s.App.WritePartial(cmd.Number, cmd.Offset, cmd.Request)
	case KindExecute, KindExecuteRequest:
		_, err := s.App.Execute(cmd.Number, cmd.Request)
		return err
	case KindExecuteResponse, KindExecuteRequestResponse:
		data, err := s.App.Execute(cmd.Number, cmd.Request)
		cmd.Response = data
		return err
	default:
		return c12err.Newf(c12err.KindSoftware, "queue: unknown command kind %d", cmd.Kind)
	}
}

// QIsDone reports whether no background commit is currently running. The
// caller still finalises with QCommit(false) to collect the result.
func (q *Queue) QIsDone() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.workerRunning
}

// QAbort marks the commit done and, when background I/O is in progress,
// interrupts it through the channel's cancel flag without dropping the
// transport.
func (q *Queue) QAbort() {
	q.mu.Lock()
	running := q.workerRunning
	q.commitDone = true
	q.mu.Unlock()
	if running {
		q.Session.Channel.CancelCommunication(false)
	}
}

// QGetTableData retrieves the response bytes of a completed queued table
// read matching (kind, number, dataID), linearly searching the queue. Unmatched lookups fail with UnknownItem.
func (q *Queue) QGetTableData(number uint16, dataID int) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cmd := range q.commands {
		if (cmd.Kind == KindRead || cmd.Kind == KindReadPartial) && cmd.Number == number && cmd.DataID == dataID {
			return cmd.Response, nil
		}
	}
	return nil, c12err.Newf(c12err.KindSoftware, "queue: UnknownItem, no table read queued for table %d dataId %d", number, dataID)
}

// QGetFunctionData retrieves the response bytes of a completed queued
// procedure execution matching (kind, number, dataID).
func (q *Queue) QGetFunctionData(number uint16, dataID int) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, cmd := range q.commands {
		if cmd.Kind.isFunction() && cmd.Number == number && cmd.DataID == dataID {
			return cmd.Response, nil
		}
	}
	return nil, c12err.Newf(c12err.KindSoftware, "queue: UnknownItem, no procedure queued for function %d dataId %d", number, dataID)
}
