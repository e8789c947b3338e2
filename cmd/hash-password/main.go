package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// 为管理员口令生成 bcrypt 哈希，写入 MAILWATCH_AUTH_ADMIN_PASSWORD_HASH。
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hash-password <password>")
		os.Exit(1)
	}

	password := os.Args[1]
	if len(password) < 8 {
		fmt.Println("错误: 口令长度至少 8 个字符")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("错误: 生成哈希失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ 哈希生成成功!\n\n")
	fmt.Printf("MAILWATCH_AUTH_ADMIN_PASSWORD_HASH='%s'\n", string(hash))
}
