package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry は URL を主キーとする記事 1 件分のレコード。
// 重複排除の根拠はこのテーブルの条件付き INSERT のみで、
// アプリ側のキャッシュやロックには一切頼らない
type Entry struct {
	URL          string `gorm:"primaryKey;size:1024" json:"url"`
	NotifierName string `gorm:"size:128;index" json:"notifierName"`
	Title        string `gorm:"size:512" json:"title"`
	Category     string `gorm:"size:128" json:"category"`
	// フィード記載の公開時刻（ISO-8601 文字列）
	PubTime string `gorm:"size:64" json:"pubtime"`
	// category 文字列から抽出したタグ。空の場合は NULL のまま
	ServiceCategories      datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"serviceCategories,omitempty"`
	MarketingArchitectures datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"marketingArchitectures,omitempty"`
	// 取り込み時刻。表示用に JST の yyyy/mm/dd HH:mm:ss 固定
	CreatedAtJST string `gorm:"column:created_at_jst;size:19" json:"createdAtJst"`
	// 通知後に書き戻される監査用フィールド
	Summary string `gorm:"size:2000" json:"summary,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Status  string `gorm:"size:32;index" json:"status"`
}

// Status 遷移: new → notified / enrich_failed
const (
	StatusNew          = "new"
	StatusNotified     = "notified"
	StatusEnrichFailed = "enrich_failed"
)

// InsertResult 条件付き INSERT の結果
type InsertResult int

const (
	InsertFailed InsertResult = iota
	Inserted
	AlreadyExists
)

type Store struct {
	DB *gorm.DB
}

func NewStore(dsn string) (*Store, error) {
	// 書き込みは全て単文なのでデフォルトのトランザクションは不要
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}

	return &Store{DB: db}, nil
}

// NewStoreWithDB 既存の *gorm.DB を使う（テスト用）
func NewStoreWithDB(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// InsertIfAbsent URL が未登録の場合のみ書き込む。
// 判定と挿入は ON CONFLICT DO NOTHING の単一文で行うため、
// 同じ URL を同時に挿入しても Inserted になるのは必ず 1 回だけ
func (s *Store) InsertIfAbsent(ctx context.Context, e *Entry) (InsertResult, error) {
	if e.Status == "" {
		e.Status = StatusNew
	}

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			DoNothing: true,
		}).
		Create(e)
	if res.Error != nil {
		return InsertFailed, fmt.Errorf("insert entry %s: %w", e.URL, res.Error)
	}
	if res.RowsAffected == 0 {
		// 既存 URL。エラーではなく正常な競合
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// UpdateAuditFields 通知完了後に要約と詳細を書き戻す。
// 行は既に存在している前提なので条件チェックはしない（ベストエフォート）
func (s *Store) UpdateAuditFields(ctx context.Context, url, summary, detail string) error {
	err := s.DB.WithContext(ctx).Model(&Entry{}).
		Where("url = ?", url).
		Updates(map[string]any{
			"summary": summary,
			"detail":  detail,
			"status":  StatusNotified,
		}).Error
	if err != nil {
		return fmt.Errorf("update audit fields %s: %w", url, err)
	}
	return nil
}

// UpdateStatus 要約失敗などの状態をマークする（ベストエフォート）
func (s *Store) UpdateStatus(ctx context.Context, url, status string) error {
	err := s.DB.WithContext(ctx).Model(&Entry{}).
		Where("url = ?", url).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("update status %s: %w", url, err)
	}
	return nil
}

// JST。表示用タイムスタンプに使用
var locJST *time.Location

func init() {
	locJST, _ = time.LoadLocation("Asia/Tokyo")
	if locJST == nil {
		locJST = time.FixedZone("JST", 9*3600)
	}
}

// NowJST 現在時刻を yyyy/mm/dd HH:mm:ss（JST）で返す
func NowJST(now time.Time) string {
	return now.In(locJST).Format("2006/01/02 15:04:05")
}
