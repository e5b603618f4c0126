package main

import (
	"fmt"
	"log"
	"time"

	"github.com/routinelog/internal/config"
	"github.com/routinelog/internal/db"
	"github.com/routinelog/internal/service"
	"golang.org/x/crypto/bcrypt"
)

// 测试数据生成器
func main() {
	// 初始化数据库
	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	createTestUsers()
	createTestRoutines()
	createTestGroups()
	createTestChallenges()

	fmt.Println("测试数据生成完成！")
	fmt.Println("用户: runner (密码: runner123)，prouser (密码: pro123，pro 档)")
	fmt.Println("例行: 晨跑、阅读、冥想，带近 30 天打卡历史")
	fmt.Println("小组: 晨跑小组；挑战: 21 天早睡")
}

// 创建测试用户
func createTestUsers() {
	var count int64
	db.DB.Model(&db.User{}).Count(&count)
	if count > 0 {
		fmt.Println("用户已存在，跳过创建")
		return
	}

	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("runner123"), bcrypt.DefaultCost)
	runner := db.User{
		Username: "runner",
		Password: string(hashedPassword),
		Nickname: "晨跑者",
		Plan:     db.PlanFree,
	}
	db.DB.Create(&runner)

	// pro 用户，订阅一年后到期
	expires := time.Now().AddDate(1, 0, 0)
	hashedPassword2, _ := bcrypt.GenerateFromPassword([]byte("pro123"), bcrypt.DefaultCost)
	pro := db.User{
		Username:      "prouser",
		Password:      string(hashedPassword2),
		Nickname:      "订阅用户",
		Plan:          db.PlanPro,
		PlanExpiresAt: &expires,
	}
	db.DB.Create(&pro)

	fmt.Println("✅ 测试用户创建完成")
}

// 创建测试例行并补齐打卡历史
func createTestRoutines() {
	var count int64
	db.DB.Model(&db.Routine{}).Count(&count)
	if count > 0 {
		fmt.Println("例行已存在，跳过创建")
		return
	}

	var runner db.User
	db.DB.Where("username = ?", "runner").First(&runner)

	routines := service.NewRoutineService(db.DB)
	completions := service.NewCompletionService(db.DB)

	// skipDays 制造断档，让连胜数据更接近真实使用
	seeds := []struct {
		name     string
		typeTag  string
		days     int
		skipDays map[int]bool
	}{
		{name: "晨跑", typeTag: "health", days: 30, skipDays: map[int]bool{6: true, 13: true, 20: true}},
		{name: "阅读", typeTag: "study", days: 21, skipDays: map[int]bool{10: true}},
		{name: "冥想", typeTag: "mind", days: 14, skipDays: nil},
	}

	for _, seed := range seeds {
		routine, err := routines.Create(runner.ID, service.RoutineInput{
			Name:    seed.name,
			TypeTag: seed.typeTag,
		})
		if err != nil {
			log.Printf("创建例行失败: %v", err)
			continue
		}

		for offset := seed.days - 1; offset >= 0; offset-- {
			if seed.skipDays[offset] {
				continue
			}
			date := time.Now().AddDate(0, 0, -offset)
			if _, err := completions.Record(service.CompletionInput{
				RoutineID: routine.ID,
				Date:      date,
				Source:    "seed",
			}); err != nil {
				log.Printf("补打卡失败 (%s): %v", seed.name, err)
			}
		}
	}

	fmt.Println("✅ 测试例行与打卡历史创建完成")
}

// 创建测试小组
func createTestGroups() {
	var count int64
	db.DB.Model(&db.Group{}).Count(&count)
	if count > 0 {
		fmt.Println("小组已存在，跳过创建")
		return
	}

	var runner, pro db.User
	db.DB.Where("username = ?", "runner").First(&runner)
	db.DB.Where("username = ?", "prouser").First(&pro)

	groups := service.NewGroupService(db.DB)
	group, err := groups.Create(runner.ID, service.GroupInput{
		Name:        "晨跑小组",
		Description: "每天早上 6 点打卡，互相监督。",
	})
	if err != nil {
		log.Printf("创建小组失败: %v", err)
		return
	}

	if _, err := groups.Join(group.ID, pro.ID); err != nil {
		log.Printf("加入小组失败: %v", err)
	}

	fmt.Println("✅ 测试小组创建完成")
}

// 创建测试挑战及打卡
func createTestChallenges() {
	var count int64
	db.DB.Model(&db.Challenge{}).Count(&count)
	if count > 0 {
		fmt.Println("挑战已存在，跳过创建")
		return
	}

	var runner db.User
	db.DB.Where("username = ?", "runner").First(&runner)

	challenges := service.NewChallengeService(db.DB)
	start := time.Now().AddDate(0, 0, -7)
	end := time.Now().AddDate(0, 0, 14)
	challenge, err := challenges.Create(service.ChallengeInput{
		Name:        "21 天早睡",
		Description: "23 点前上床，连续 21 天。",
		StartDate:   &start,
		EndDate:     &end,
	})
	if err != nil {
		log.Printf("创建挑战失败: %v", err)
		return
	}

	if _, err := challenges.Join(challenge.ID, runner.ID); err != nil {
		log.Printf("加入挑战失败: %v", err)
		return
	}

	for offset := 5; offset >= 0; offset-- {
		date := time.Now().AddDate(0, 0, -offset)
		if _, err := challenges.CheckIn(challenge.ID, runner.ID, date, ""); err != nil {
			log.Printf("挑战打卡失败: %v", err)
		}
	}

	fmt.Println("✅ 测试挑战创建完成")
}
