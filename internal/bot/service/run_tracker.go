package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/entity"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// runTracker 导入调用的审计留痕：建档、文件归档、收尾。
// 仓库为nil时退化为只归档不留痕，留痕失败也只告警——审计旁路
// 不能影响导入主流程。
type runTracker struct {
	runs    *repository.ImportRunRepository
	archive *Archive
	logger  *zap.Logger
}

func (t *runTracker) beginRun(ctx context.Context, importType, filename, triggeredBy string, data []byte) *entity.ImportRun {
	run := &entity.ImportRun{
		ID:          uuid.New().String(),
		Type:        importType,
		Filename:    filename,
		Status:      entity.ImportStatusRunning,
		TriggeredBy: triggeredBy,
		CreatedAt:   time.Now(),
	}

	objectName := fmt.Sprintf("imports/%s/%s_%s", importType, run.ID, filepath.Base(filename))
	if key, err := t.archive.Put(ctx, objectName, data, xlsxContentType); err != nil {
		t.logger.Warn("上传文件归档失败", zap.String("file", filename), zap.Error(err))
	} else {
		run.ObjectKey = key
	}

	if t.runs != nil {
		if err := t.runs.Create(ctx, run); err != nil {
			t.logger.Warn("导入记录创建失败", zap.Error(err))
		}
	}
	return run
}

func (t *runTracker) finishRun(ctx context.Context, run *entity.ImportRun, summary interface{}, importErr error) {
	now := time.Now()
	run.FinishedAt = &now
	if importErr != nil {
		run.Status = entity.ImportStatusFailed
		run.Error = importErr.Error()
	} else {
		run.Status = entity.ImportStatusDone
	}

	if summary != nil {
		if raw, err := json.Marshal(summary); err == nil {
			var doc entity.JSONB
			if json.Unmarshal(raw, &doc) == nil {
				run.Summary = doc
			}
		}
	}

	if t.runs != nil {
		if err := t.runs.Update(ctx, run); err != nil {
			t.logger.Warn("导入记录更新失败", zap.Error(err))
		}
	}
}
