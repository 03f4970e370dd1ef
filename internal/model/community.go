package model

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// Dimension 社区的一个可选维度（分期 / 分型）
type Dimension struct {
	Label  string   `json:"label"`
	Values []string `json:"values"`
}

// Dimensions 最多两个维度：stage 与 type
type Dimensions struct {
	Stage *Dimension `json:"stage,omitempty"`
	Type  *Dimension `json:"type,omitempty"`
}

func (d Dimensions) AllowsStage(v string) bool {
	return d.Stage != nil && slices.Contains(d.Stage.Values, v)
}

func (d Dimensions) AllowsType(v string) bool {
	return d.Type != nil && slices.Contains(d.Type.Values, v)
}

type Community struct {
	ID          uint64                         `gorm:"primaryKey" json:"id"`
	Name        string                         `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description string                         `gorm:"type:text" json:"description"`
	MemberCount int64                          `gorm:"not null;default:0" json:"member_count"`
	Dimensions  datatypes.JSONType[Dimensions] `gorm:"type:json" json:"dimensions"`
	CreatedAt   time.Time                      `json:"created_at"`
	UpdatedAt   time.Time                      `json:"updated_at"`
}

func (c *Community) Dims() Dimensions {
	return c.Dimensions.Data()
}

// SubCommunityMember 二级/三级子社区的聚合人数
type SubCommunityMember struct {
	ID          uint64 `gorm:"primaryKey" json:"-"`
	CommunityID uint64 `gorm:"not null;uniqueIndex:uk_sub_community,priority:1" json:"community_id"`
	Stage       string `gorm:"size:64;not null;default:'';uniqueIndex:uk_sub_community,priority:2" json:"stage"`
	Type        string `gorm:"size:64;not null;default:'';uniqueIndex:uk_sub_community,priority:3" json:"type"`
	MemberCount int64  `gorm:"not null;default:0" json:"member_count"`
}

// UserCommunityMembership stage/type 为空串表示一级成员
type UserCommunityMembership struct {
	ID          uint64    `gorm:"primaryKey" json:"-"`
	UserID      uint64    `gorm:"not null;index;uniqueIndex:uk_user_community,priority:1" json:"user_id"`
	CommunityID uint64    `gorm:"not null;index;uniqueIndex:uk_user_community,priority:2" json:"community_id"`
	Stage       string    `gorm:"size:64;not null;default:'';uniqueIndex:uk_user_community,priority:3" json:"stage"`
	Type        string    `gorm:"size:64;not null;default:'';uniqueIndex:uk_user_community,priority:4" json:"type"`
	CreatedAt   time.Time `json:"joined_at"`
}

type Level int

const (
	LevelI   Level = 1
	LevelII  Level = 2
	LevelIII Level = 3
)

// LevelOf 按 stage/type 是否为空判断层级
func LevelOf(stage, typ string) Level {
	switch {
	case stage == "" && typ == "":
		return LevelI
	case stage != "" && typ != "":
		return LevelIII
	default:
		return LevelII
	}
}
