package shopee

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Shopee v2 签名规则：
//
//	公共接口（token 换取/刷新）：base = partner_id + path + timestamp
//	店铺接口：base = partner_id + path + timestamp + access_token + shop_id
//	sign = hex(HMAC-SHA256(partner_key, base))

// SignPublic 计算公共接口签名
func SignPublic(partnerID int64, partnerKey, path string, timestamp int64) string {
	base := strconv.FormatInt(partnerID, 10) + path + strconv.FormatInt(timestamp, 10)
	return hmacHex(partnerKey, base)
}

// SignShop 计算店铺接口签名
func SignShop(partnerID int64, partnerKey, path string, timestamp int64, accessToken string, shopID int64) string {
	base := strconv.FormatInt(partnerID, 10) + path + strconv.FormatInt(timestamp, 10) +
		accessToken + strconv.FormatInt(shopID, 10)
	return hmacHex(partnerKey, base)
}

func hmacHex(key, base string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(base))
	return hex.EncodeToString(mac.Sum(nil))
}
