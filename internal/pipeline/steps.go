package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-converter/internal/domain"
	"github.com/dvloznov/statement-converter/internal/pdfdoc"
	"github.com/dvloznov/statement-converter/internal/session"
)

// PipelineStep represents a single step of per-file processing.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, run *FileRun) error
}

// FileRun holds the shared state across all steps for one file.
type FileRun struct {
	File         session.FileState
	Pages        []pdfdoc.PageImage
	Transactions []domain.Transaction
}

// StepError records which step failed. Its message keeps the step name for
// logs; UserMessage strips it for display.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// RasterizeStep renders every page of the file, using the supplied password
// when there is one.
type RasterizeStep struct {
	Renderer Renderer
}

func (s *RasterizeStep) Name() string { return "rasterize" }

func (s *RasterizeStep) Execute(ctx context.Context, run *FileRun) error {
	pages, err := s.Renderer.Render(ctx, run.File.File.Data, run.File.Password)
	if err != nil {
		return err
	}
	run.Pages = pages
	return nil
}

// ExtractStep sends the rendered pages to the model.
type ExtractStep struct {
	Extractor TransactionExtractor
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, run *FileRun) error {
	txs, err := s.Extractor.ExtractTransactions(ctx, run.Pages, run.File.Name())
	if err != nil {
		return err
	}
	run.Transactions = txs
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, run *FileRun) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Step: step.Name(), Err: err}
		}
		if err := step.Execute(ctx, run); err != nil {
			return &StepError{Step: step.Name(), Err: err}
		}
	}
	return nil
}

// NewFilePipeline creates the standard rasterize then extract pipeline.
func NewFilePipeline(renderer Renderer, extractor TransactionExtractor) *Pipeline {
	return NewPipeline(
		&RasterizeStep{Renderer: renderer},
		&ExtractStep{Extractor: extractor},
	)
}
