package tasks

// Option configures a Workers facade constructed via NewWorkers.
type Option func(*facadeOptions)

type facadeOptions struct {
	scheduler Scheduler

	resultsBufferSize           uint
	errorsBufferSize            uint
	stopOnErrorErrorsBufferSize uint

	stopOnError      bool
	startImmediately bool
	preserveOrder    bool
	errorTagging     bool
}

func defaultFacadeOptions() facadeOptions {
	return facadeOptions{
		resultsBufferSize:           1024,
		errorsBufferSize:            1024,
		stopOnErrorErrorsBufferSize: 100,
	}
}

// WithScheduler selects the Scheduler new tasks are started on (default
// DefaultScheduler()).
func WithScheduler(s Scheduler) Option {
	return func(o *facadeOptions) { o.scheduler = s }
}

// WithResultsBuffer sets the size of the results channel buffer.
func WithResultsBuffer(size uint) Option {
	return func(o *facadeOptions) { o.resultsBufferSize = size }
}

// WithErrorsBuffer sets the size of the outgoing errors channel buffer.
func WithErrorsBuffer(size uint) Option {
	return func(o *facadeOptions) { o.errorsBufferSize = size }
}

// WithStopOnErrorBuffer sets the size of the internal errors buffer used
// when StopOnError is enabled. A smaller buffer triggers cancellation
// sooner under contention.
func WithStopOnErrorBuffer(size uint) Option {
	return func(o *facadeOptions) { o.stopOnErrorErrorsBufferSize = size }
}

// WithStartImmediately starts the facade as soon as NewWorkers returns.
func WithStartImmediately() Option {
	return func(o *facadeOptions) { o.startImmediately = true }
}

// WithStopOnError forwards only the first task error on GetErrors and
// cancels the facade's own context when an error arrives. It does not cancel
// tasks: task bodies do not receive that context, so in-flight tasks keep
// running and tasks added afterwards still start.
func WithStopOnError() Option {
	return func(o *facadeOptions) { o.stopOnError = true }
}

// WithPreserveOrder emits results on GetResults in AddTask order rather
// than completion order (spec.md supplemented feature: a channel-facing
// facade over the task engine).
func WithPreserveOrder() Option {
	return func(o *facadeOptions) { o.preserveOrder = true }
}

// WithErrorTagging wraps every error delivered on GetErrors with the owning
// task's Id and AddTask index (see TaskMetaError, ExtractTaskID, ExtractTaskIndex).
func WithErrorTagging() Option {
	return func(o *facadeOptions) { o.errorTagging = true }
}
