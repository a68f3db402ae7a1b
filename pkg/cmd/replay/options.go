package replay

import (
	"io"

	"github.com/gpukit/gpuprof/pkg/cmd/options"
)

type Options struct {
	sessionPath string

	status  bool
	verbose bool

	writer io.Writer

	*options.CommonOptions
}

type Option func(o *Options)

func NewOptions(opts ...Option) *Options {
	o := new(Options)
	o.CommonOptions = new(options.CommonOptions)

	for _, f := range opts {
		f(o)
	}

	return o
}

func WithCommonOptions(common *options.CommonOptions) Option {
	return func(o *Options) {
		o.CommonOptions = common
	}
}

func WithSessionPath(path string) Option {
	return func(o *Options) {
		o.sessionPath = path
	}
}

func WithWriter(w io.Writer) Option {
	return func(o *Options) {
		o.writer = w
	}
}

func WithVerbose(verbose bool) Option {
	return func(o *Options) {
		o.verbose = verbose
	}
}
