package service

import (
	"math/rand/v2"
	"strings"
	"time"

	"resistance-be/internal/service/game"
)

// 房间码字母表，去掉了容易混淆的 0/O/1/I
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const roomCodeLength = 4

// 建房后给首个连接留出的宽限期，避免刚建好的空闲房间被清理
const roomReapGracePeriod = time.Minute

func randomRoomCode() string {
	var sb strings.Builder
	for i := 0; i < roomCodeLength; i++ {
		sb.WriteByte(roomCodeAlphabet[rand.IntN(len(roomCodeAlphabet))])
	}

	return sb.String()
}

// normalizeName 为空昵称填充默认值并截断超长昵称
func normalizeName(name, fallback string) string {
	if name == "" {
		return fallback
	}

	runes := []rune(name)
	if len(runes) > game.MAX_NAME_LEN {
		return string(runes[:game.MAX_NAME_LEN])
	}

	return name
}

// isSessionExpired 判断房间是否可以回收：
// 过了宽限期且所有玩家的连接都已断开
func isSessionExpired(machine *game.GameMachine) bool {
	if machine == nil {
		return true
	}

	if time.Since(machine.CreatedAt()) < roomReapGracePeriod {
		return false
	}

	return machine.LiveConnections() == 0
}
