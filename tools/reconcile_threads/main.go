// reconcile_threads 手动清理重复的家庭群聊
// 用法: go run ./tools/reconcile_threads [-config config/config.yaml] [-yes]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/RidloJ/fomuso-family-hub-sub000/config"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/repository"
	"github.com/RidloJ/fomuso-family-hub-sub000/internal/service"
	dbPkg "github.com/RidloJ/fomuso-family-hub-sub000/pkg/db"
	redisPkg "github.com/RidloJ/fomuso-family-hub-sub000/pkg/redis"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	assumeYes := flag.Bool("yes", false, "跳过确认")
	flag.Parse()

	cfg := config.LoadConfigFrom(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("配置校验失败: %v", err)
	}

	gdb, err := dbPkg.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	defer dbPkg.CloseDB()

	fmt.Println("数据库连接成功")
	fmt.Printf("数据库: %s (%s)\n", cfg.Database.Database, cfg.Database.Driver)

	repos := repository.New(gdb)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	groups, err := repos.Threads.ListGroupsByTitle(ctx, cfg.Chat.GroupThreadTitle)
	if err != nil {
		log.Fatalf("查询群聊失败: %v", err)
	}
	fmt.Printf("标题为 %q 的群聊共 %d 个\n", cfg.Chat.GroupThreadTitle, len(groups))
	if len(groups) <= 1 {
		fmt.Println("没有需要清理的重复群聊")
		return
	}
	for i, g := range groups {
		mark := "删除"
		if i == 0 {
			mark = "保留"
		}
		fmt.Printf("  [%s] %s 创建于 %s\n", mark, g.ID, g.CreatedAt.Format(time.RFC3339))
	}

	if !*assumeYes {
		fmt.Print("\n警告: 重复群聊的消息将被永久删除，成员会并入保留的群聊！\n")
		fmt.Print("输入 'YES' 确认: ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "YES" {
			fmt.Println("已取消")
			return
		}
	}

	// 使用Redis时同时清理视图缓存
	var views service.ViewCache
	if cfg.Realtime.Backend == "redis" {
		client, err := redisPkg.InitRedis(ctx, cfg.Redis)
		if err != nil {
			log.Printf("Redis连接失败，跳过缓存清理: %v", err)
		} else {
			defer redisPkg.Close()
			views = redisPkg.NewViewCache(client)
		}
	}

	threads := service.NewThreadService(repos, views, cfg.Chat.GroupThreadTitle, cfg.Chat.ViewCacheTTL)
	removed, err := threads.ReconcileGroupThreads(ctx)
	if err != nil {
		log.Fatalf("清理失败: %v", err)
	}
	fmt.Printf("清理完成，删除 %d 个重复群聊\n", removed)
}
