package probe

import "context"

type Prober interface {
	Probe(ctx context.Context, t Target) AttemptResult
}

type Checker interface {
	Check(ctx context.Context, t Target) Verdict
}

type Reporter interface {
	Report(ctx context.Context, v Verdict) error
}

type Publisher interface {
	PublishVerdict(ctx context.Context, v Verdict) error
}
