package replay

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gpukit/gpuprof/internal/output"
	"github.com/gpukit/gpuprof/pkg/cmd/options"
	"github.com/gpukit/gpuprof/pkg/codeobj"
	"github.com/gpukit/gpuprof/pkg/profile"
	"github.com/gpukit/gpuprof/pkg/queue"
	"github.com/gpukit/gpuprof/pkg/runtime"
	"github.com/gpukit/gpuprof/pkg/session"
)

const (
	CmdName = "replay"

	defaultQueueSize  = 1024
	deliveryWorkers   = 4
	statusRefreshRate = 100 * time.Millisecond
)

func NewCommand(common *options.CommonOptions) *cobra.Command {
	o := NewOptions(WithCommonOptions(common))

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Replay a recorded profiling session and dump the flat profile",
		Long: fmt.Sprintf(`
%s drives a recorded session through the queue interception controller and the PC sampling aggregation engine:
queues are created and intercepted per agent, kernel dispatches flow through the registered callbacks, and
delivered PC samples are attributed to decoded instructions. The resulting per-instruction flat profile is
checked for sample conservation and printed.
`, CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.sessionPath, "session", "s", "", "Path to the session description file")
	cmd.Flags().BoolVar(&o.status, "status", false, "Periodically print the sample delivery status")
	cmd.Flags().BoolVar(&o.verbose, "verbose", false, "Log the instruction mix of every kernel")

	cmd.MarkFlagRequired("session")

	return cmd
}

func (o *Options) Run(_ *cobra.Command, _ []string) error {
	if o.LogLevel != "" {
		logLevel, err := log.ParseLevel(o.LogLevel)
		if err != nil {
			return errors.Wrap(err, "invalid log level")
		}
		o.Logger = o.Logger.Level(logLevel)
	}
	if o.Ctx == nil {
		o.Ctx = context.Background()
	}
	if o.writer == nil {
		o.writer = os.Stdout
	}

	sess, err := session.Load(o.sessionPath)
	if err != nil {
		return errors.Wrap(err, "failed to load session")
	}

	translator := codeobj.NewTableTranslator()
	for _, co := range sess.CodeObjects {
		if err := translator.AddCodeObject(co.ID, co.TranslatorInstructions()); err != nil {
			return errors.Wrap(err, "failed to register code object")
		}
	}

	rt := runtime.NewSimRuntime(sess.RuntimeAgents()...)
	controller := queue.NewController(o.Logger)
	if err := controller.Init(rt.Table(), rt, sess.Contexts()); err != nil {
		return errors.Wrap(err, "failed to init queue controller")
	}

	profiler := profile.NewFlatProfiler(translator)
	defer profiler.Fini()

	for _, co := range sess.CodeObjects {
		for _, k := range co.Kernels {
			if _, err := profiler.LoadKernel(co.ID, k.Name, k.Begin, k.End); err != nil {
				return errors.Wrap(err, "failed to load kernel")
			}
		}
	}

	dispatched, err := o.runDispatches(sess, rt, controller)
	if err != nil {
		return err
	}

	delivered, err := o.deliverSamples(sess, profiler)
	if err != nil {
		return err
	}

	// Delivery is quiesced; the conservation check is now valid.
	if err := profiler.WriteReport(o.writer, sess.TotalSamples()); err != nil {
		return errors.Wrap(err, "flat profile report failed")
	}

	if o.verbose {
		profiler.KernelObjects().IterateKernelObjects(func(k *profile.KernelObject) {
			mix := profile.ComputeInstructionMix(k)
			o.Logger.Info().
				Str("kernel", k.KernelName()).
				Int("vector", mix.Vector).
				Int("scalar", mix.Scalar).
				Int("waitcnt", mix.Waitcnt).
				Int("other", mix.Other).
				Msg("instruction mix")
		})
	}

	o.Logger.Info().
		Uint64("dispatches", dispatched).
		Uint64("samples", delivered).
		Msg("replay complete")

	return nil
}

// runDispatches registers a dispatch observer per supported agent, then
// creates one queue per dispatching agent and drives every dispatch
// through it.
func (o *Options) runDispatches(sess *session.Session, rt *runtime.SimRuntime, controller *queue.Controller) (uint64, error) {
	var dispatched atomic.Uint64

	intercepting := sess.Services.CounterCollection ||
		sess.Services.KernelDispatchTracing ||
		sess.Services.MemoryCopyTracing
	if !intercepting {
		o.Logger.Warn().Msg("no registered service observes kernel dispatches, skipping queue interception")
	}

	for _, cache := range controller.SupportedAgents() {
		controller.AddCallback(cache.Agent(),
			func(q *queue.Queue, d *queue.Dispatch) {
				dispatched.Add(1)
				o.Logger.Debug().
					Str("kernel", d.KernelName).
					Uint64("agent", uint64(q.Agent().Handle)).
					Msg("kernel dispatch")
			},
			func(_ *queue.Queue, d *queue.Dispatch) {
				o.Logger.Debug().Str("kernel", d.KernelName).Msg("kernel dispatch completed")
			},
		)
	}

	queues := make(map[uint64]runtime.QueueHandle)
	for _, d := range sess.Dispatches {
		handle, ok := queues[d.Agent]
		if !ok {
			var err error
			handle, err = rt.CreateQueue(
				runtime.AgentHandle(d.Agent), defaultQueueSize, runtime.QueueTypeMulti, nil, nil, 0, 0)
			if err != nil {
				return 0, errors.Wrapf(err, "failed to create queue on agent %#x", d.Agent)
			}
			queues[d.Agent] = handle
		}

		if !intercepting {
			continue
		}
		q, ok := controller.Queue(handle)
		if !ok {
			return 0, errors.Wrapf(queue.ErrAgentNotSupported, "queue %#x was not intercepted", uint64(handle))
		}
		dispatch := &queue.Dispatch{KernelName: d.Kernel, CodeObjectID: d.CodeObject}
		q.Submit(dispatch)
		q.Complete(dispatch)
	}

	return dispatched.Load(), nil
}

// deliverSamples feeds the session's PC samples to the profiler from
// concurrent delivery workers and waits for the backlog to drain.
func (o *Options) deliverSamples(sess *session.Session, profiler *profile.FlatProfiler) (uint64, error) {
	var delivered atomic.Uint64
	total := sess.TotalSamples()

	statusCtx, stopStatus := context.WithCancel(o.Ctx)
	defer stopStatus()
	if o.status {
		go output.StatusBar(statusCtx, statusRefreshRate, func() {
			output.PrintRight(output.PrettyReplayStatus(delivered.Load(), total))
		})
	}

	g, gctx := errgroup.WithContext(o.Ctx)
	samplesCh := make(chan session.Sample)
	for i := 0; i < deliveryWorkers; i++ {
		g.Go(func() error {
			for s := range samplesCh {
				for n := uint64(0); n < s.Count; n++ {
					if err := profiler.RecordSample(s.CodeObject, s.Address, s.ExecMask); err != nil {
						return err
					}
					delivered.Add(1)
				}
			}

			return nil
		})
	}
send:
	for _, s := range sess.Samples {
		select {
		case samplesCh <- s:
		case <-gctx.Done():
			// A worker failed; stop feeding so the group can drain.
			break send
		}
	}
	close(samplesCh)

	if err := g.Wait(); err != nil {
		return 0, errors.Wrap(err, "failed to deliver samples")
	}

	return delivered.Load(), nil
}
