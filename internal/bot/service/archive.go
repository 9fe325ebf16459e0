package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
)

// Archive 原始上传文件的对象存储归档。客户端为nil时所有操作空转——
// 归档是尽力而为的旁路，绝不阻塞导入本身。
type Archive struct {
	client *minio.Client
	bucket string
}

func NewArchive(client *minio.Client, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// Put 归档一份上传文件，返回对象键
func (a *Archive) Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if a == nil || a.client == nil {
		return "", nil
	}
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("archive upload: %w", err)
	}
	return objectName, nil
}
