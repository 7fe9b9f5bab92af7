package generators

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"EduQuest/server/internal/extract"
	"EduQuest/server/internal/interfaces"
	"EduQuest/server/internal/models"
	"EduQuest/server/internal/prompts"
)

const (
	// storyboardAttempts is the total attempt count per level: one try
	// plus two retries, each a fresh attempt.
	storyboardAttempts = 3
	storyboardDelay    = 1 * time.Second
)

// LevelGenerator fans out the per-level pipelines and joins their results.
// Each level runs independently: a storyboard first, then image and
// dialogue concurrently. Sub-phase failures degrade without failing the
// level; only a storyboard failure does.
type LevelGenerator struct {
	model     interfaces.ModelCaller
	image     interfaces.ImageGenerator
	extractor *extract.Extractor
	templates *prompts.TemplateEngine
	notifier  interfaces.ProgressNotifier

	levelCount   int
	maxWorkers   int
	textTimeout  time.Duration
	imageTimeout time.Duration
}

// LevelGeneratorOptions configures a LevelGenerator. Image and Notifier
// are optional; a nil image adapter marks the image phase skipped.
type LevelGeneratorOptions struct {
	Model        interfaces.ModelCaller
	Image        interfaces.ImageGenerator
	Extractor    *extract.Extractor
	Templates    *prompts.TemplateEngine
	Notifier     interfaces.ProgressNotifier
	LevelCount   int
	MaxWorkers   int
	TextTimeout  time.Duration
	ImageTimeout time.Duration
}

// NewLevelGenerator creates a fan-out generator.
func NewLevelGenerator(opts LevelGeneratorOptions) *LevelGenerator {
	if opts.LevelCount <= 0 {
		opts.LevelCount = 6
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 10
	}
	if opts.TextTimeout <= 0 {
		opts.TextTimeout = 60 * time.Second
	}
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = 120 * time.Second
	}
	return &LevelGenerator{
		model:        opts.Model,
		image:        opts.Image,
		extractor:    opts.Extractor,
		templates:    opts.Templates,
		notifier:     opts.Notifier,
		levelCount:   opts.LevelCount,
		maxWorkers:   opts.MaxWorkers,
		textTimeout:  opts.TextTimeout,
		imageTimeout: opts.ImageTimeout,
	}
}

// GenerateAll runs every level pipeline concurrently and returns exactly
// levelCount records sorted by level index. A single level's failure never
// cancels its siblings; workers record failures in their own slot.
func (g *LevelGenerator) GenerateAll(ctx context.Context, sessionID, framework string, record *models.RequirementRecord) []models.LevelRecord {
	n := g.levelCount
	records := make([]models.LevelRecord, n)
	completed := atomic.NewInt32(0)

	workers := g.maxWorkers
	if n < workers {
		workers = n
	}

	grp := &errgroup.Group{}
	grp.SetLimit(workers)

	for i := 0; i < n; i++ {
		idx := i
		grp.Go(func() error {
			// Each worker writes only its own slot.
			records[idx] = g.generateLevel(ctx, sessionID, idx+1, framework, record)
			log.Printf("[Levels] level %d finished (%d/%d)", idx+1, completed.Inc(), n)
			return nil
		})
	}
	grp.Wait()

	// Completion order is non-deterministic; the contract is index order.
	sort.Slice(records, func(i, j int) bool {
		return records[i].LevelIndex < records[j].LevelIndex
	})
	return records
}

// generateLevel runs one level's pipeline: storyboard with retries, then
// image and dialogue in parallel.
func (g *LevelGenerator) generateLevel(ctx context.Context, sessionID string, levelIndex int, framework string, record *models.RequirementRecord) models.LevelRecord {
	rec := models.LevelRecord{
		LevelIndex:       levelIndex,
		LevelName:        fmt.Sprintf("第%d关", levelIndex),
		StoryboardStatus: models.PhasePending,
		ImageStatus:      models.PhasePending,
		DialogueStatus:   models.PhasePending,
	}
	g.notify(sessionID, levelIndex, "storyboard", "started", "")

	var storyboard *models.Storyboard
	var lastErr error
	for attempt := 0; attempt < storyboardAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(storyboardDelay * time.Duration(attempt)):
			}
			if ctx.Err() != nil {
				break
			}
		}
		storyboard, lastErr = g.generateStoryboard(ctx, levelIndex, framework, record)
		if lastErr == nil {
			break
		}
		log.Printf("[Levels] level %d storyboard attempt %d failed: %v", levelIndex, attempt+1, lastErr)
	}

	if ctx.Err() != nil {
		rec.StoryboardStatus = models.PhaseFailed
		rec.StoryboardError = fmt.Sprintf("cancelled: %v", ctx.Err())
		rec.ImageStatus = models.PhaseSkipped
		rec.DialogueStatus = models.PhaseSkipped
		g.notify(sessionID, levelIndex, "storyboard", "failed", rec.StoryboardError)
		return rec
	}
	if lastErr != nil {
		rec.StoryboardStatus = models.PhaseFailed
		rec.StoryboardError = lastErr.Error()
		rec.ImageStatus = models.PhaseSkipped
		rec.DialogueStatus = models.PhaseSkipped
		g.notify(sessionID, levelIndex, "storyboard", "failed", rec.StoryboardError)
		return rec
	}

	rec.StoryboardStatus = models.PhaseCompleted
	rec.Storyboard = storyboard
	if storyboard.LevelName != "" {
		rec.LevelName = storyboard.LevelName
	}
	g.notify(sessionID, levelIndex, "storyboard", "completed", "")

	// Image and dialogue are independent reads of the storyboard; they
	// run concurrently and write disjoint fields of rec.
	var wg sync.WaitGroup

	if g.image != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := g.image.GenerateImage(ctx, interfaces.ImagePrompt{
				Scene:       storyboard.SceneDescription,
				Style:       storyboard.VisualStyle,
				Characters:  strings.Join(storyboard.Characters, ", "),
				Composition: storyboard.Composition,
				Technical:   storyboard.Technical,
			}, g.imageTimeout)
			if err != nil {
				rec.ImageStatus = models.PhaseFailed
				rec.ImageError = err.Error()
				g.notify(sessionID, levelIndex, "image", "failed", err.Error())
				return
			}
			rec.ImageStatus = models.PhaseCompleted
			rec.ImageRef = ref
			g.notify(sessionID, levelIndex, "image", "completed", "")
		}()
	} else {
		rec.ImageStatus = models.PhaseSkipped
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		dialogue, err := g.generateDialogue(ctx, storyboard)
		if err != nil {
			rec.DialogueStatus = models.PhaseFailed
			rec.DialogueError = err.Error()
			g.notify(sessionID, levelIndex, "dialogue", "failed", err.Error())
			return
		}
		rec.DialogueStatus = models.PhaseCompleted
		rec.DialogueText = dialogue
		g.notify(sessionID, levelIndex, "dialogue", "completed", "")
	}()

	wg.Wait()
	return rec
}

func (g *LevelGenerator) generateStoryboard(ctx context.Context, levelIndex int, framework string, record *models.RequirementRecord) (*models.Storyboard, error) {
	prompt, err := g.templates.Render("storyboard", map[string]string{
		"level_index": fmt.Sprintf("%d", levelIndex),
		"framework":   framework,
		"requirement": fmt.Sprintf("科目：%s 年级：%s 知识点：%s", record.Subject, record.Grade, prompts.JoinList(record.KnowledgePoints)),
	})
	if err != nil {
		return nil, err
	}

	reply, err := g.model.Complete(ctx, prompt, g.textTimeout)
	if err != nil {
		return nil, err
	}

	var storyboard models.Storyboard
	if err := g.extractor.Extract(ctx, reply, &storyboard); err != nil {
		return nil, err
	}
	if storyboard.SceneDescription == "" {
		return nil, fmt.Errorf("storyboard missing scene description")
	}
	return &storyboard, nil
}

func (g *LevelGenerator) generateDialogue(ctx context.Context, storyboard *models.Storyboard) (string, error) {
	prompt, err := g.templates.Render("dialogue", map[string]string{
		"storyboard":      storyboard.Script,
		"knowledge_point": storyboard.KnowledgePoint,
	})
	if err != nil {
		return "", err
	}
	dialogue, err := g.model.Complete(ctx, prompt, g.textTimeout)
	if err != nil {
		return "", err
	}
	if dialogue == "" {
		return "", fmt.Errorf("empty dialogue")
	}
	return dialogue, nil
}

func (g *LevelGenerator) notify(sessionID string, levelIndex int, phase, status, detail string) {
	if g.notifier == nil {
		return
	}
	g.notifier.Notify(interfaces.ProgressEvent{
		SessionID:  sessionID,
		LevelIndex: levelIndex,
		Phase:      phase,
		Status:     status,
		Detail:     detail,
		Timestamp:  time.Now().Unix(),
	})
}
