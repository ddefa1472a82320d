package service

import "errors"

// 校验错误：在任何存储/网络调用之前返回
var (
	ErrEmptyMessage          = errors.New("消息内容为空")
	ErrAttachmentTooLarge    = errors.New("附件超过大小上限")
	ErrInvalidAttachmentType = errors.New("不支持的附件类型")
)

// 访问控制错误
var (
	ErrNotThreadMember  = errors.New("不是该会话的成员")
	ErrNotMessageAuthor = errors.New("只能修改自己发送的消息")
)

// 状态错误
var (
	ErrMessageDeleted   = errors.New("消息已删除")
	ErrThreadNotFound   = errors.New("会话不存在")
	ErrMessageNotFound  = errors.New("消息不存在")
	ErrProfileNotFound  = errors.New("成员不存在")
	ErrSelfDirectThread = errors.New("不能和自己创建单聊")
	// ErrDirectThreadMembers 单聊固定为两名成员
	ErrDirectThreadMembers = errors.New("单聊不能添加成员")
)
