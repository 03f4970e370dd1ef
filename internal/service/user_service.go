package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"Hope_Community/internal/model"
	"Hope_Community/internal/pkg"
	"Hope_Community/internal/repository/redis"
	"Hope_Community/internal/repository/store"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	usernamePattern  = regexp.MustCompile(`^[A-Za-z0-9_\p{Han}]+$`)
	onsetDatePattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
)

const maxHospitals = 20

type UserService struct {
	users       *store.UserRepository
	communities *store.CommunityRepository
	memberships *store.MembershipRepository
	sessions    *redis.SessionRepository
	tokens      *pkg.TokenIssuer
}

// Profile 用户资料及其病史、医院、已加入的社区
type Profile struct {
	model.User
	DiseaseHistory []model.UserDiseaseHistory `json:"disease_history"`
	Hospitals      []string                   `json:"hospitals"`
	Communities    []CommunityTag             `json:"communities"`
}

// ProfileInput 为 nil 的字段保持不变；DiseaseHistory/Hospitals 非 nil 时整体替换
type ProfileInput struct {
	Nickname           *string `json:"nickname"`
	Email              *string `json:"email"`
	Gender             *string `json:"gender"`
	Age                *int    `json:"age"`
	Profession         *string `json:"profession"`
	MaritalStatus      *string `json:"marital_status"`
	FertilityStatus    *string `json:"fertility_status"`
	BirthLocation      *string `json:"birth_location"`
	ResidenceLocation  *string `json:"residence_location"`
	Hukou              *string `json:"hukou"`
	Education          *string `json:"education"`
	IncomeIndividual   *string `json:"income_individual"`
	IncomeFamily       *string `json:"income_family"`
	Housing            *string `json:"housing"`
	EconomicDependency *string `json:"economic_dependency"`
	Bio                *string `json:"bio"`
	GuruIntro          *string `json:"guru_intro"`

	DiseaseHistory []DiseaseInput `json:"disease_history"`
	Hospitals      []string       `json:"hospitals"`
}

type DiseaseInput struct {
	CommunityID *uint64 `json:"community_id"`
	Stage       string  `json:"stage"`
	Type        string  `json:"type"`
	Disease     string  `json:"disease"`
	OnsetDate   *string `json:"onset_date"`
}

func NewUserService(users *store.UserRepository, communities *store.CommunityRepository,
	memberships *store.MembershipRepository, sessions *redis.SessionRepository, tokens *pkg.TokenIssuer) *UserService {
	return &UserService{
		users:       users,
		communities: communities,
		memberships: memberships,
		sessions:    sessions,
		tokens:      tokens,
	}
}

func (s *UserService) Signup(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < 3 || n > 32 || !usernamePattern.MatchString(username) {
		return nil, pkg.InvalidInput("用户名需为 3-32 位字母、数字、下划线或汉字")
	}
	if n := len(password); n < 6 || n > 64 {
		return nil, pkg.InvalidInput("密码长度需在 6-64 之间")
	}
	if _, err := s.users.FindByUsername(ctx, username); err == nil {
		return nil, pkg.Duplicate("用户名已存在")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username: username,
		Password: string(hash),
		Nickname: username,
	}
	if err = s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, pkg.Duplicate("用户名已存在")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login 成功后 token 写入 redis，同一用户只保留最新的一个
func (s *UserService) Login(ctx context.Context, username, password string) (*model.User, string, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", pkg.Unauthorized("用户名或密码错误")
		}
		return nil, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, "", pkg.Unauthorized("用户名或密码错误")
	}
	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return nil, "", err
	}
	if err = s.sessions.AddToken(ctx, user.ID, token); err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *UserService) Logout(ctx context.Context, userID uint64) error {
	return s.sessions.DeleteToken(ctx, userID)
}

// Authenticate 校验签名后再与 redis 中的 token 比对，通过则续期
func (s *UserService) Authenticate(ctx context.Context, token string) (*pkg.Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, pkg.NewAppError(pkg.ErrUnauthorized, "登录已失效，请重新登录", err)
	}
	current, err := s.sessions.GetToken(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, redis.ErrTokenNotFound) {
			return nil, pkg.Unauthorized("登录已失效，请重新登录")
		}
		return nil, err
	}
	if current != token {
		return nil, pkg.Unauthorized("账号已在其他地方登录")
	}
	if err = s.sessions.ExtendToken(ctx, claims.UserID); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s *UserService) TokenTTLSeconds() int {
	return int(s.tokens.TTL().Seconds())
}

func (s *UserService) Me(ctx context.Context, userID uint64) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "用户不存在")
	}
	return user, nil
}

func (s *UserService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return notFound(err, "用户不存在")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return pkg.InvalidInput("原密码错误")
	}
	if n := len(newPassword); n < 6 || n > 64 {
		return pkg.InvalidInput("密码长度需在 6-64 之间")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err = s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	// 改密后强制重新登录
	return s.sessions.DeleteToken(ctx, userID)
}

func (s *UserService) Profile(ctx context.Context, userID uint64) (*Profile, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "用户不存在")
	}
	return s.buildProfile(ctx, user)
}

// PublicProfile 他人查看，不返回邮箱
func (s *UserService) PublicProfile(ctx context.Context, username string) (*Profile, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, notFound(err, "用户不存在")
	}
	p, err := s.buildProfile(ctx, user)
	if err != nil {
		return nil, err
	}
	p.Email = ""
	return p, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint64, in ProfileInput) (*Profile, error) {
	fields, err := profileFields(in)
	if err != nil {
		return nil, err
	}
	diseases, err := s.diseaseRows(ctx, in.DiseaseHistory)
	if err != nil {
		return nil, err
	}
	hospitals, err := hospitalRows(in.Hospitals)
	if err != nil {
		return nil, err
	}
	if _, err = s.users.FindByID(ctx, userID); err != nil {
		return nil, notFound(err, "用户不存在")
	}
	if err = s.users.UpdateProfile(ctx, userID, fields, diseases, hospitals); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.Profile(ctx, userID)
}

// SetGuru 管理命令使用
func (s *UserService) SetGuru(ctx context.Context, username string, isGuru bool, intro string) (*model.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, notFound(err, "用户不存在")
	}
	if err = s.users.SetGuru(ctx, user.ID, isGuru, strings.TrimSpace(intro)); err != nil {
		return nil, err
	}
	return s.users.FindByID(ctx, user.ID)
}

func (s *UserService) buildProfile(ctx context.Context, user *model.User) (*Profile, error) {
	ids := []uint64{user.ID}
	diseases, err := s.users.DiseasesByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	hospitals, err := s.users.HospitalsByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	memberships, err := s.memberships.ListByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	communities, err := s.communities.FindByIDs(ctx, distinctCommunityIDs(memberships))
	if err != nil {
		return nil, err
	}
	names := make(map[uint64]string, len(communities))
	for _, c := range communities {
		names[c.ID] = c.Name
	}

	p := &Profile{
		User:           *user,
		DiseaseHistory: diseases,
		Hospitals:      make([]string, 0, len(hospitals)),
		Communities:    make([]CommunityTag, 0, len(memberships)),
	}
	for _, h := range hospitals {
		p.Hospitals = append(p.Hospitals, h.Hospital)
	}
	for _, m := range memberships {
		p.Communities = append(p.Communities, CommunityTag{
			CommunityID:   m.CommunityID,
			CommunityName: names[m.CommunityID],
			Stage:         m.Stage,
			Type:          m.Type,
		})
	}
	return p, nil
}

func profileFields(in ProfileInput) (map[string]any, error) {
	fields := make(map[string]any)
	text := []struct {
		col   string
		value *string
		max   int
	}{
		{"nickname", in.Nickname, 32},
		{"email", in.Email, 128},
		{"gender", in.Gender, 16},
		{"profession", in.Profession, 64},
		{"marital_status", in.MaritalStatus, 32},
		{"fertility_status", in.FertilityStatus, 32},
		{"birth_location", in.BirthLocation, 128},
		{"residence_location", in.ResidenceLocation, 128},
		{"hukou", in.Hukou, 32},
		{"education", in.Education, 32},
		{"income_individual", in.IncomeIndividual, 32},
		{"income_family", in.IncomeFamily, 32},
		{"housing", in.Housing, 32},
		{"economic_dependency", in.EconomicDependency, 32},
		{"bio", in.Bio, 2000},
		{"guru_intro", in.GuruIntro, 2000},
	}
	for _, f := range text {
		if f.value == nil {
			continue
		}
		v := strings.TrimSpace(*f.value)
		if utf8.RuneCountInString(v) > f.max {
			return nil, pkg.InvalidInput(fmt.Sprintf("%s 长度不能超过 %d", f.col, f.max))
		}
		fields[f.col] = v
	}
	if email, ok := fields["email"].(string); ok && email != "" && !strings.Contains(email, "@") {
		return nil, pkg.InvalidInput("邮箱格式不正确")
	}
	if in.Age != nil {
		if *in.Age < 0 || *in.Age > 150 {
			return nil, pkg.InvalidInput("年龄需在 0-150 之间")
		}
		fields["age"] = *in.Age
	}
	return fields, nil
}

// diseaseRows 关联社区时校验社区与分期分型，未关联时必须填写疾病名称
func (s *UserService) diseaseRows(ctx context.Context, in []DiseaseInput) ([]model.UserDiseaseHistory, error) {
	if in == nil {
		return nil, nil
	}
	rows := make([]model.UserDiseaseHistory, 0, len(in))
	for _, d := range in {
		stage, typ := normalizeKey(d.Stage, d.Type)
		row := model.UserDiseaseHistory{
			Stage:   stage,
			Type:    typ,
			Disease: strings.TrimSpace(d.Disease),
		}
		if d.CommunityID != nil && *d.CommunityID != 0 {
			c, err := s.communities.FindByID(ctx, *d.CommunityID)
			if err != nil {
				return nil, notFound(err, "病史关联的社区不存在")
			}
			if err = validateKey(c.Dims(), stage, typ); err != nil {
				return nil, err
			}
			id := c.ID
			row.CommunityID = &id
			if row.Disease == "" {
				row.Disease = c.Name
			}
		} else if row.Disease == "" {
			return nil, pkg.InvalidInput("病史需关联社区或填写疾病名称")
		}
		if utf8.RuneCountInString(row.Disease) > 128 {
			return nil, pkg.InvalidInput("疾病名称过长")
		}
		if d.OnsetDate != nil {
			if date := strings.TrimSpace(*d.OnsetDate); date != "" {
				if !onsetDatePattern.MatchString(date) {
					return nil, pkg.InvalidInput("发病时间格式应为 YYYY-MM")
				}
				row.OnsetDate = &date
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func hospitalRows(in []string) ([]model.UserHospital, error) {
	if in == nil {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(in))
	rows := make([]model.UserHospital, 0, len(in))
	for _, h := range in {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if utf8.RuneCountInString(h) > 128 {
			return nil, pkg.InvalidInput("医院名称过长")
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		rows = append(rows, model.UserHospital{Hospital: h})
	}
	if len(rows) > maxHospitals {
		return nil, pkg.InvalidInput(fmt.Sprintf("最多填写 %d 家医院", maxHospitals))
	}
	return rows, nil
}
