package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"videotrans/internal/progress"
	"videotrans/internal/types"
)

// TaskRecord is the persisted view of one task: enough to answer status
// queries after a restart, not the full in-memory run state.
type TaskRecord struct {
	Id           int64           `gorm:"primaryKey;autoIncrement" json:"-"`
	TaskId       string          `gorm:"index;uniqueIndex" json:"task_id"`
	SourcePath   string          `json:"source_path"`
	TargetDir    string          `json:"target_dir"`
	State        types.TaskState `json:"state"`
	Percent      int             `json:"percent"`
	StatusText   string          `json:"status_text"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreateTime   int64           `gorm:"autoCreateTime" json:"create_time"`
	UpdateTime   int64           `gorm:"autoUpdateTime" json:"update_time"`
}

func SaveRecord(rec *TaskRecord) error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	var existing TaskRecord
	result := DB.Where("task_id = ?", rec.TaskId).First(&existing)
	if result.Error == nil {
		rec.Id = existing.Id
		rec.CreateTime = existing.CreateTime
		return DB.Save(rec).Error
	}
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return DB.Create(rec).Error
	}
	return result.Error
}

func GetRecord(taskId string) (*TaskRecord, error) {
	if DB == nil {
		return nil, errors.New("database not initialized")
	}
	var rec TaskRecord
	if err := DB.Where("task_id = ?", taskId).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func ListRecords(limit int) ([]TaskRecord, error) {
	if DB == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	var recs []TaskRecord
	if err := DB.Order("create_time desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// MarkStaleRecords flags every record left in a non-terminal state by a
// previous process as failed. Called once on startup.
func MarkStaleRecords() (int64, error) {
	if DB == nil {
		return 0, errors.New("database not initialized")
	}
	result := DB.Model(&TaskRecord{}).
		Where("state NOT IN ?", []types.TaskState{types.StateFinalized, types.StateFailed, types.StateCancelled}).
		Updates(map[string]interface{}{
			"state":         types.StateFailed,
			"error_message": "服务重启，任务被中断 Task interrupted by server restart",
			"update_time":   time.Now().Unix(),
		})
	return result.RowsAffected, result.Error
}

// updateFromEvent folds one progress event into the stored record.
func updateFromEvent(rec *TaskRecord, ev progress.Event) {
	switch ev.Kind {
	case progress.KindError:
		rec.State = types.StateFailed
		rec.ErrorMessage = ev.Error
	case progress.KindSucceeded:
		rec.State = types.StateFinalized
		rec.Percent = 100
	case progress.KindCancelled:
		rec.State = types.StateCancelled
	default:
		if ev.Percent > rec.Percent {
			rec.Percent = ev.Percent
		}
		if ev.Text != "" {
			rec.StatusText = ev.Text
		}
	}
}

// Reporter persists progress events, giving status queries a durable source
// once the live task has been retired.
type Reporter struct{}

func (Reporter) Report(ev progress.Event) {
	rec, err := GetRecord(ev.TaskID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return
		}
		rec = &TaskRecord{TaskId: ev.TaskID}
	}
	updateFromEvent(rec, ev)
	_ = SaveRecord(rec)
}
